package common

import (
	"fmt"
	"io"
)

// A context bundles the ambient services that every long-lived component
// needs: configuration, logging and lifecycle control.  Contexts form a
// tree; closing a parent closes every child derived from it.
type Context interface {
	io.Closer

	Config() Config
	Logger() Logger
	Control() Control

	// Returns a child context whose logger is prefixed by the given
	// format and whose control is closed along with this context.
	Sub(format string, vals ...interface{}) Context
}

type ctx struct {
	config  Config
	logger  Logger
	control Control
}

func NewContext(config Config) Context {
	return &ctx{config: config, logger: NewStandardLogger(config), control: NewControl(nil)}
}

func (c *ctx) Close() error {
	return c.control.Close()
}

func (c *ctx) Config() Config {
	return c.config
}

func (c *ctx) Logger() Logger {
	return c.logger
}

func (c *ctx) Control() Control {
	return c.control
}

func (c *ctx) Sub(format string, vals ...interface{}) Context {
	return &ctx{
		config:  c.config,
		logger:  c.logger.Fmt(format, vals...),
		control: c.control.Sub(),
	}
}

func (c *ctx) String() string {
	return fmt.Sprintf("Context(%v)", c.logger)
}
