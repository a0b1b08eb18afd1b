package relay

import "context"

//go:generate mockgen -typed -package=relay -destination=./mocks.go -source=./interface.go

type httpclient interface {
	Get(ctx context.Context, url string) ([]byte, error)
}
