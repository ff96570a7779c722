//go:build windows

package t32

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"
)

func load(path string) (*funcs, error) {
	dll := windows.NewLazyDLL(path)
	if err := dll.Load(); err != nil {
		return nil, err
	}

	procs := map[string]*windows.LazyProc{}
	for _, name := range []string{
		"T32_Config", "T32_Init", "T32_Attach", "T32_Cmd", "T32_GetPracticeState", "T32_Exit",
	} {
		p := dll.NewProc(name)
		if err := p.Find(); err != nil {
			return nil, fmt.Errorf("resolve %s: %w", name, err)
		}
		procs[name] = p
	}

	call := func(p *windows.LazyProc, args ...uintptr) int32 {
		r, _, _ := p.Call(args...)
		return int32(r)
	}

	return &funcs{
		config: func(key, value string) int32 {
			k, err := windows.BytePtrFromString(key)
			if err != nil {
				return codeBadString
			}
			v, err := windows.BytePtrFromString(value)
			if err != nil {
				return codeBadString
			}
			r, _, _ := procs["T32_Config"].Call(uintptr(unsafe.Pointer(k)), uintptr(unsafe.Pointer(v)))
			return int32(r)
		},
		init:   func() int32 { return call(procs["T32_Init"]) },
		attach: func(device int32) int32 { return call(procs["T32_Attach"], uintptr(device)) },
		cmd: func(command string) int32 {
			c, err := windows.BytePtrFromString(command)
			if err != nil {
				return codeBadString
			}
			r, _, _ := procs["T32_Cmd"].Call(uintptr(unsafe.Pointer(c)))
			return int32(r)
		},
		practiceState: func(state *int32) int32 {
			r, _, _ := procs["T32_GetPracticeState"].Call(uintptr(unsafe.Pointer(state)))
			return int32(r)
		},
		exit: func() int32 { return call(procs["T32_Exit"]) },
		release: func() error {
			return windows.FreeLibrary(windows.Handle(dll.Handle()))
		},
	}, nil
}
