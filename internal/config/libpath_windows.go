package config

const defaultLibraryPath = `.\lib\t32api64.dll`
