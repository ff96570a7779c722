//go:build !windows

package config

const defaultLibraryPath = "./lib/t32api.so"
