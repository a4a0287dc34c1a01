package main

import (
	"fmt"

	harvesthttp "github.com/fwojciec/harvest/http"
)

// Run executes the serve command. It blocks until the context is cancelled.
func (c *ServeCmd) Run(deps *Dependencies) error {
	srv := harvesthttp.NewServer()
	srv.Addr = c.Addr
	srv.Store = deps.Store
	srv.Embedder = deps.Embedder
	if deps.Logger != nil {
		srv.Logger = deps.Logger
	}

	if err := srv.Open(); err != nil {
		fmt.Fprintf(deps.Stderr, "error: listen on %s: %v\n", c.Addr, err)
		return err
	}
	fmt.Fprintf(deps.Stdout, "Serving queries on %s\n", srv.URL())

	<-deps.Ctx.Done()
	return srv.Close()
}
