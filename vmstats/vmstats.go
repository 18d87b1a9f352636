// Package vmstats recibe las notificaciones de eventos del manejador de fallos
// y lleva los contadores de la VM.
package vmstats

import (
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/pkg/errors"
)

// Evento es algo que pasó durante un fallo de página
type Evento int

const (
	// FalloTLB se notifica recién al instalar la traducción, para que valga
	// FalloTLB = FalloTLBLibre + FalloTLBReemplazo. Los fallos de
	// direccionamiento y de solo lectura no llegan a instalar y no se cuentan
	// acá; el de solo lectura cuenta como ProcesoTerminado.
	FalloTLB Evento = iota

	FalloTLBLibre                    // se instaló la entrada en un slot inválido
	FalloTLBReemplazo                // se pisó un slot válido (round robin)
	InvalidacionTLB                  // se invalidó la TLB entera (cambio de contexto)
	RecargaTLB                       // la página ya estaba residente
	FalloPaginaCero                  // página llenada con ceros
	FalloPaginaDisco                 // página traída de disco (ELF o swap)
	FalloPaginaELF                   // página traída del ejecutable
	FalloPaginaSwap                  // página traída del swapfile
	EscrituraSwap                    // página desalojada al swapfile
	ProcesoTerminado                 // un fallo terminó con el proceso
	cantidadEventos
)

var nombres = [cantidadEventos]string{
	"TLB Faults",
	"TLB Faults with Free",
	"TLB Faults with Replace",
	"TLB Invalidations",
	"TLB Reloads",
	"Page Faults (Zeroed)",
	"Page Faults (Disk)",
	"Page Faults from ELF",
	"Page Faults from Swapfile",
	"Swapfile Writes",
	"Processes Killed by Faults",
}

func (e Evento) String() string {
	if e < 0 || e >= cantidadEventos {
		return fmt.Sprintf("Evento(%d)", int(e))
	}
	return nombres[e]
}

// Notificador es la facilidad externa que recibe los eventos
type Notificador interface {
	Notificar(e Evento)
}

// Nulo descarta todos los eventos
type Nulo struct{}

func (Nulo) Notificar(Evento) {}

// Contadores cuenta cada evento. Es seguro para uso concurrente.
type Contadores struct {
	valores [cantidadEventos]atomic.Uint64
}

func NuevosContadores() *Contadores {
	return &Contadores{}
}

func (c *Contadores) Notificar(e Evento) {
	if e < 0 || e >= cantidadEventos {
		return
	}
	c.valores[e].Add(1)
}

// Valor devuelve el contador de un evento
func (c *Contadores) Valor(e Evento) uint64 {
	return c.valores[e].Load()
}

// Resumen es una foto de todos los contadores
type Resumen map[string]uint64

// Instantanea arma el resumen con los nombres de cada evento
func (c *Contadores) Instantanea() Resumen {
	r := make(Resumen, cantidadEventos)
	for e := Evento(0); e < cantidadEventos; e++ {
		r[e.String()] = c.Valor(e)
	}
	return r
}

// Verificar controla las identidades entre contadores:
//
//	TLB faults = free + replace
//	TLB faults = reloads + zeroed + disk
//	disk = ELF + swapfile
func (c *Contadores) Verificar() []error {
	var errs []error

	fallos := c.Valor(FalloTLB)
	if libre, reemplazo := c.Valor(FalloTLBLibre), c.Valor(FalloTLBReemplazo); libre+reemplazo != fallos {
		errs = append(errs, errors.Errorf("free (%d) + replace (%d) != TLB faults (%d)", libre, reemplazo, fallos))
	}
	if recargas, ceros, disco := c.Valor(RecargaTLB), c.Valor(FalloPaginaCero), c.Valor(FalloPaginaDisco); recargas+ceros+disco != fallos {
		errs = append(errs, errors.Errorf("reloads (%d) + zeroed (%d) + disk (%d) != TLB faults (%d)", recargas, ceros, disco, fallos))
	}
	if elf, swap, disco := c.Valor(FalloPaginaELF), c.Valor(FalloPaginaSwap), c.Valor(FalloPaginaDisco); elf+swap != disco {
		errs = append(errs, errors.Errorf("ELF (%d) + swapfile (%d) != disk (%d)", elf, swap, disco))
	}

	return errs
}

// Imprimir vuelca los contadores y las advertencias de consistencia al logger
func (c *Contadores) Imprimir(logger *slog.Logger) {
	logger.Info("-------------------ESTADÍSTICAS-------------------")
	for e := Evento(0); e < cantidadEventos; e++ {
		logger.Info(e.String(), "valor", c.Valor(e))
	}
	for _, err := range c.Verificar() {
		logger.Warn("Contadores inconsistentes", "error", err)
	}
}
