package utils

import "sync/atomic"

// Semaforo es un semáforo contador sobre un canal con buffer: cada ficha en el
// canal es una unidad tomada. La VM usa uno binario para atender un fallo de
// página a la vez.
type Semaforo struct {
	fichas  chan struct{}
	esperas atomic.Uint64
}

func NewSemaforo(capacidad int) *Semaforo {
	if capacidad <= 0 {
		capacidad = 1
	}
	return &Semaforo{fichas: make(chan struct{}, capacidad)}
}

// Wait (P) toma una unidad, bloqueando si no hay
func (s *Semaforo) Wait() {
	if s.TryWait() {
		return
	}
	s.esperas.Add(1)
	s.fichas <- struct{}{}
}

// Signal (V) devuelve una unidad; sin unidades tomadas no hace nada
func (s *Semaforo) Signal() {
	select {
	case <-s.fichas:
	default:
		ErrorLog.Warn("Signal sobre un semáforo sin unidades tomadas")
	}
}

func (s *Semaforo) TryWait() bool {
	select {
	case s.fichas <- struct{}{}:
		return true
	default:
		return false
	}
}

// Esperas cuenta las veces que Wait tuvo que bloquear
func (s *Semaforo) Esperas() uint64 {
	return s.esperas.Load()
}

// Ejecutar corre f con una unidad tomada
func (s *Semaforo) Ejecutar(f func() error) error {
	s.Wait()
	defer s.Signal()
	return f()
}
