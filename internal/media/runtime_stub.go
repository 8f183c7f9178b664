//go:build !govips || !cgo

package media

func Startup() error {
	return nil
}

func Shutdown() {}

func newStaticNormalizer() staticNormalizer {
	return stdNormalizer{}
}
