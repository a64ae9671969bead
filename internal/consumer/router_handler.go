package consumer

import (
	"context"
	"errors"

	"example.com/pelotonbridge/internal/router"
)

// CommandRouter is implemented by router.Router.
type CommandRouter interface {
	Handle(ctx context.Context, cmd router.Command) error
}

// RouterHandler forwards decoded commands to a router. Commands the router drops are
// acknowledged so they are not redelivered.
type RouterHandler struct {
	router CommandRouter
}

// NewRouterHandler constructs a RouterHandler.
func NewRouterHandler(r CommandRouter) *RouterHandler {
	return &RouterHandler{router: r}
}

// Handle implements Handler.
func (h *RouterHandler) Handle(ctx context.Context, msg Message) error {
	err := h.router.Handle(ctx, router.Command{
		Name:       msg.Name,
		InstanceID: msg.InstanceID,
		Payload:    msg.Payload,
	})
	if errors.Is(err, router.ErrDropped) {
		recordDropped(msg)
		return nil
	}
	return err
}
