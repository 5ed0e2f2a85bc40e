//go:build ggpu

package softgpu

import _ "github.com/gogpu/gg/gpu" // register the GPU accelerator
