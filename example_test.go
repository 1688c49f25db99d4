package blockfs_test

import (
	"fmt"

	"github.com/soypat/blockfs"
)

func Example_basicUsage() {
	dev := blockfs.NewMemDevice(2000)
	fs, err := blockfs.Format(dev, blockfs.FormatConfig{Label: "EXAMPLE", NumBlocks: 2000})
	if err != nil {
		panic(err)
	}

	if err := fs.Mkdir("/greetings"); err != nil {
		panic(err)
	}
	f, err := fs.OpenFile("/greetings/hello.txt", blockfs.ModeWrite|blockfs.ModeCreate)
	if err != nil {
		panic(err)
	}
	if _, err := f.Write([]byte("hello, blockfs")); err != nil {
		panic(err)
	}
	if err := f.Close(); err != nil {
		panic(err)
	}

	f2, err := fs.OpenFile("/greetings/hello.txt", blockfs.ModeRead)
	if err != nil {
		panic(err)
	}
	buf := make([]byte, 64)
	n, _ := f2.Read(buf)
	f2.Close()
	fmt.Println(string(buf[:n]))
	// Output: hello, blockfs
}
