package main

import (
	"errors"
	"flag"
	"fmt"

	"github.com/linnemanlabs/go-core/httpmw"
	"github.com/linnemanlabs/go-core/httpserver"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/opshttp"
	"github.com/linnemanlabs/go-core/otelx"
	"github.com/linnemanlabs/go-core/prof"

	vc "github.com/linnemanlabs/quietnews/internal/cfg"
)

// serverConfig gathers every package's flags for the server binary.
type serverConfig struct {
	app    vc.Config
	http   httpserver.Config
	httpmw httpmw.Config
	log    log.Config
	ops    opshttp.Config
	prof   prof.Config
	trace  otelx.Config
}

func (c *serverConfig) register(fs *flag.FlagSet) {
	c.app.RegisterFlags(fs)
	c.http.RegisterFlags(fs)
	c.httpmw.RegisterFlags(fs)
	c.log.RegisterFlags(fs)
	c.ops.RegisterFlags(fs)
	c.prof.RegisterFlags(fs)
	c.trace.RegisterFlags(fs)
}

func (c *serverConfig) validate() error {
	err := errors.Join(
		c.app.Validate(),
		c.http.Validate(),
		c.httpmw.Validate(),
		c.log.Validate(),
		c.ops.Validate(),
		c.prof.Validate(),
		c.trace.Validate(),
	)
	if c.app.APIPort == c.ops.Port {
		err = errors.Join(err, fmt.Errorf("http and admin ports must differ (both %d)", c.app.APIPort))
	}
	return err
}
