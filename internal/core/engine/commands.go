package engine

import (
	"github.com/pkg/errors"

	"hostengine/internal/core/ecs"
	"hostengine/internal/core/guest"
)

// applyCommands applies cmds to store in emission order. A failing
// command aborts the remainder of this call — mutations already applied
// by earlier commands in cmds are not rolled back, per §4.3's
// best-effort policy.
func applyCommands(store *ecs.Store, cmds []guest.Command) error {
	for i, cmd := range cmds {
		switch cmd.Kind {
		case guest.CommandCreate:
			store.Register(cmd.Entity)
		case guest.CommandDelete:
			store.Destroy(cmd.Entity)
		case guest.CommandAddComponent:
			if err := store.Add(cmd.Entity, cmd.Component, cmd.Bytes); err != nil {
				return errors.Wrapf(err, "command %d (add_component) on entity %d", i, cmd.Entity)
			}
		case guest.CommandRemoveComponent:
			store.Remove(cmd.Entity, cmd.Component)
		default:
			return errors.Errorf("command %d: unknown kind %v", i, cmd.Kind)
		}
	}
	return nil
}
