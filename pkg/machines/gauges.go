package machines

import "github.com/sparkw/Singularity/pkg/metrics"

// ObserveGauges refreshes the machine-count gauges for one store. Driven
// periodically so scrapes reflect the coordination store, not process memory.
func ObserveGauges[T Machine[T]](kind string, s *Store[T]) error {
	active, err := s.NumActive()
	if err != nil {
		return err
	}
	decommissioning, err := s.NumDecommissioning()
	if err != nil {
		return err
	}
	dead, err := s.NumDead()
	if err != nil {
		return err
	}

	metrics.MachinesTotal.WithLabelValues(kind, "active").Set(float64(active))
	metrics.MachinesTotal.WithLabelValues(kind, "decommissioning").Set(float64(decommissioning))
	metrics.MachinesTotal.WithLabelValues(kind, "dead").Set(float64(dead))
	return nil
}
