package framework

import (
	"context"
	"net"
	"net/http"
)

// Service is the application under test. For every accepted connection the ephemeral server
// asks it for the handler that will serve that peer.
type Service interface {
	ConnHandler(peer net.Addr) (http.Handler, error)
}

// ServiceFunc adapts a function to the Service interface.
type ServiceFunc func(peer net.Addr) (http.Handler, error)

func (f ServiceFunc) ConnHandler(peer net.Addr) (http.Handler, error) {
	return f(peer)
}

type peerAddrKey struct{}

type handlerService struct {
	handler http.Handler
}

// HandlerService turns an ordinary http.Handler (a ServeMux, a chi router, ...) into a Service.
// Requests seen by the handler carry the peer address, which PeerAddr retrieves.
func HandlerService(h http.Handler) Service {
	return handlerService{handler: h}
}

func (s handlerService) ConnHandler(peer net.Addr) (http.Handler, error) {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), peerAddrKey{}, peer)
		s.handler.ServeHTTP(w, r.WithContext(ctx))
	}), nil
}

// PeerAddr returns the address of the client connection that a request arrived on, if the
// request is being served through HandlerService.
func PeerAddr(ctx context.Context) (net.Addr, bool) {
	addr, ok := ctx.Value(peerAddrKey{}).(net.Addr)
	return addr, ok
}
