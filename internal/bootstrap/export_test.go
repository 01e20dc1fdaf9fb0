package bootstrap

func (b *Backend) AddCloser(f func() error) {
	b.closers = append(b.closers, f)
}
