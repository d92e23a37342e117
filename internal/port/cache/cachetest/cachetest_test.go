package cachetest

import "testing"

func TestMemoryCompliance(t *testing.T) {
	Run(t, NewMemory(), nil)
}
