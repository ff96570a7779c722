//go:build linux || darwin

package t32

import (
	"fmt"

	"github.com/ebitengine/purego"
)

func load(path string) (*funcs, error) {
	lib, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, err
	}

	fn := &funcs{}
	bind := []struct {
		name string
		ptr  any
	}{
		{"T32_Config", &fn.config},
		{"T32_Init", &fn.init},
		{"T32_Attach", &fn.attach},
		{"T32_Cmd", &fn.cmd},
		{"T32_GetPracticeState", &fn.practiceState},
		{"T32_Exit", &fn.exit},
	}
	for _, b := range bind {
		sym, err := purego.Dlsym(lib, b.name)
		if err != nil {
			purego.Dlclose(lib)
			return nil, fmt.Errorf("resolve %s: %w", b.name, err)
		}
		purego.RegisterFunc(b.ptr, sym)
	}
	fn.release = func() error { return purego.Dlclose(lib) }
	return fn, nil
}
