package inventory

import "time"

// SetClock reemplaza el reloj del motor.
func (e *MovementEngine) SetClock(now func() time.Time) { e.now = now }
