package mock

import (
	"context"
	"sync"

	"github.com/bakkerme/giftcard-bot/internal/issuer"
)

type Issuer struct {
	mu    sync.Mutex
	Codes []string
	Err   error
	Calls []issuer.Request
}

func (i *Issuer) Issue(ctx context.Context, request issuer.Request) (string, error) {
	_ = ctx
	i.mu.Lock()
	defer i.mu.Unlock()
	i.Calls = append(i.Calls, request)
	if i.Err != nil {
		return "", i.Err
	}
	if len(i.Codes) == 0 {
		return "GIFT-0000", nil
	}
	code := i.Codes[0]
	if len(i.Codes) > 1 {
		i.Codes = i.Codes[1:]
	}
	return code, nil
}

func (i *Issuer) CallCount() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.Calls)
}
