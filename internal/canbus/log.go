package canbus

import "github.com/SamSkjord/uvc-radar-overlay/internal/monitoring"

var logf = monitoring.Subsystem("canbus")
