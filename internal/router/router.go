// Package router prints inbound greenhouse messages by topic family.
package router

import (
	"io"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/vincentmworia/GreenhouseIOT/internal/infrastructure/mqtt"
)

// Router writes one line per inbound message:
//
//	greenhouse/commands/...  ->  Command: <payload>
//	greenhouse/sensors/...   ->  Sensor: <payload>
//	anything else            ->  <topic>: <payload>
//
// Colours are dropped automatically when the output is not a terminal.
type Router struct {
	mu      sync.Mutex
	out     io.Writer
	command *color.Color
	sensor  *color.Color
	other   *color.Color
}

// New creates a Router writing to out.
func New(out io.Writer) *Router {
	return &Router{
		out:     out,
		command: color.New(color.FgYellow, color.Bold),
		sensor:  color.New(color.FgGreen),
		other:   color.New(color.FgCyan),
	}
}

// Route handles one message. Its signature matches mqtt.Router.
// Write errors are ignored: a broken console must not stall the session.
func (r *Router) Route(topic, payload string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case strings.HasPrefix(topic, mqtt.TopicPrefixCommands):
		r.command.Fprint(r.out, "Command: ") //nolint:errcheck // Console output
		io.WriteString(r.out, payload+"\n")  //nolint:errcheck // Console output
	case strings.HasPrefix(topic, mqtt.TopicPrefixSensors):
		r.sensor.Fprint(r.out, "Sensor: ")  //nolint:errcheck // Console output
		io.WriteString(r.out, payload+"\n") //nolint:errcheck // Console output
	default:
		r.other.Fprint(r.out, topic+": ")   //nolint:errcheck // Console output
		io.WriteString(r.out, payload+"\n") //nolint:errcheck // Console output
	}
}
