package buffer

import "sync"

var tPool = sync.Pool{
	New: func() any {
		b := make([]byte, 64*1024)
		return &b
	},
}
