// SPDX-License-Identifier: MPL-2.0

package layer

// Observer receives progress messages as alternating key-value pairs.
// *log.Logger from github.com/charmbracelet/log satisfies it.
type Observer interface {
	Debug(msg interface{}, keyvals ...interface{})
	Info(msg interface{}, keyvals ...interface{})
	Warn(msg interface{}, keyvals ...interface{})
}

// NopObserver discards every message.
type NopObserver struct{}

func (NopObserver) Debug(interface{}, ...interface{}) {}
func (NopObserver) Info(interface{}, ...interface{})  {}
func (NopObserver) Warn(interface{}, ...interface{})  {}

func observerOrNop(o Observer) Observer {
	if o == nil {
		return NopObserver{}
	}
	return o
}
