package connector

import (
	"context"
	"errors"
	"log"

	"github.com/go-sql-driver/mysql"
)

// QueryFilter narrows a pull or statistic request.
type QueryFilter struct {
	// Limit caps the number of pulled entities; 0 means no limit.
	Limit int
}

// Error is the error part of an Action.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

// Action is the outcome of a controller call. Handled is always true;
// failures are reported through Error, never through a Go error.
type Action struct {
	Handled bool   `json:"handled"`
	Result  any    `json:"result,omitempty"`
	Error   *Error `json:"error,omitempty"`
}

// Statistic is the result of Controller.Statistic.
type Statistic struct {
	Available      int64  `json:"available"`
	ControllerName string `json:"controllerName"`
}

// Coder is implemented by errors that carry an error code for the peer.
type Coder interface {
	Code() int
}

// Controller runs one mapper per call and wraps the outcome in an Action.
type Controller struct {
	name   string
	client *Client
	tag    string
}

// Name returns the controller (mapper) name.
func (c *Controller) Name() string {
	return c.name
}

// Pull returns the entities of the mapper's table or query as Result.
func (c *Controller) Pull(ctx context.Context, filter QueryFilter) *Action {
	m, err := c.client.mapper(c.name)
	if err != nil {
		return c.fail("pull", err)
	}
	models, err := m.Pull(ctx, nil, filter.Limit)
	if err != nil {
		return c.fail("pull", err)
	}
	return &Action{Handled: true, Result: models}
}

// Push writes model. Result is the pushed model, or the models returned by
// the mapper's getMethod when it has one.
func (c *Controller) Push(ctx context.Context, model any) *Action {
	m, err := c.client.mapper(c.name)
	if err != nil {
		return c.fail("push", err)
	}
	result, err := m.Push(ctx, model, nil)
	if err != nil {
		return c.fail("push", err)
	}
	if m.Entry().Config.GetMethod == "" && len(result) == 1 {
		return &Action{Handled: true, Result: result[0]}
	}
	return &Action{Handled: true, Result: result}
}

// Delete removes the row of model. Result is model.
func (c *Controller) Delete(ctx context.Context, model any) *Action {
	m, err := c.client.mapper(c.name)
	if err != nil {
		return c.fail("delete", err)
	}
	if err := m.Delete(ctx, model); err != nil {
		return c.fail("delete", err)
	}
	return &Action{Handled: true, Result: model}
}

// Statistic counts the available entities.
func (c *Controller) Statistic(ctx context.Context, filter QueryFilter) *Action {
	m, err := c.client.mapper(c.name)
	if err != nil {
		return c.fail("statistic", err)
	}
	available, err := m.Statistic(ctx)
	if err != nil {
		return c.fail("statistic", err)
	}
	return &Action{Handled: true, Result: &Statistic{Available: available, ControllerName: c.name}}
}

func (c *Controller) fail(op string, err error) *Action {
	log.Printf("%s WARNING: %s failed: %v", c.tag, op, err)
	return &Action{Handled: true, Error: &Error{Code: errorCode(err), Message: err.Error()}}
}

// errorCode prefers a Coder in the chain, then a MySQL error number.
func errorCode(err error) int {
	var coder Coder
	if errors.As(err, &coder) {
		return coder.Code()
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return int(myErr.Number)
	}
	return 0
}
