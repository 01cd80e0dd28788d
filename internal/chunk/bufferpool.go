package chunk

import (
	"bytes"
	"sync"
)

var bufPool sync.Pool

func init() {
	bufPool.New = func() interface{} {
		return &bytes.Buffer{}
	}
}

func getBuffer() *bytes.Buffer {
	b := bufPool.Get().(*bytes.Buffer)
	b.Reset()
	return b
}

func putBuffer(b *bytes.Buffer) {
	bufPool.Put(b)
}
