package handler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/bindertrack/internal/binder/events"
	"github.com/Adithya-Monish-Kumar-K/bindertrack/internal/binder/service"
	"github.com/Adithya-Monish-Kumar-K/bindertrack/pkg/rpc"
)

const MethodResolve = "BinderService.Resolve"

type ResolveParams struct {
	PID int `json:"pid"`
}

// RegisterRPC exposes svc on s.
func RegisterRPC(s *rpc.Server, svc *service.Service) {
	s.Register(MethodResolve, func(ctx context.Context, req json.RawMessage) (any, error) {
		var params ResolveParams
		if err := json.Unmarshal(req, &params); err != nil {
			return nil, fmt.Errorf("decoding %s params: %w", MethodResolve, err)
		}
		res, _, err := svc.Resolve(ctx, params.PID, events.OriginRPC)
		if err != nil {
			return nil, err
		}
		return res, nil
	})
}
