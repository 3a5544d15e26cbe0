// Package mmap maps local segment files read-only into memory.
//
// Segment pages are addressed by fixed offsets, so a mapping turns every page
// read into a slice operation. On unix platforms the mapping uses
// golang.org/x/sys/unix; Windows uses the syscall file mapping API.
package mmap
