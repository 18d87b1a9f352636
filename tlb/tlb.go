// Package tlb simula la TLB por software: los slots de hardware, la máscara
// de interrupciones del núcleo, la política de reemplazo round robin y el
// protocolo de instalación e invalidación de entradas.
package tlb

import (
	"sync"
	"sync/atomic"

	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/direcciones"
)

const (
	CantidadSlots = 64

	Valido uint32 = 0x200 // bit de entrada válida en la parte baja
	Sucio  uint32 = 0x400 // bit de escritura permitida en la parte baja
)

// HiInvalido devuelve la etiqueta que marca un slot vacío. Cada slot usa una
// dirección distinta de kseg0, que nunca coincide con una dirección de usuario.
func HiInvalido(slot int) uint32 {
	return direcciones.KSeg0 + uint32(slot)*direcciones.TamanioPagina
}

// Hardware es la TLB física: N slots de (hi, lo)
type Hardware interface {
	Cantidad() int
	Leer(slot int) (hi, lo uint32)
	Escribir(slot int, hi, lo uint32)
}

// Interrupciones enmascara y restaura las interrupciones del núcleo local
type Interrupciones interface {
	Enmascarar() int
	Restaurar(nivel int)
}

type entrada struct {
	hi, lo uint32
}

// Simulada es una TLB en memoria
type Simulada struct {
	mu    sync.Mutex
	slots []entrada
}

// NuevaSimulada crea una TLB de n slots, todos inválidos. Con n <= 0 usa CantidadSlots.
func NuevaSimulada(n int) *Simulada {
	if n <= 0 {
		n = CantidadSlots
	}
	s := &Simulada{slots: make([]entrada, n)}
	for i := range s.slots {
		s.slots[i] = entrada{hi: HiInvalido(i)}
	}
	return s
}

func (s *Simulada) Cantidad() int {
	return len(s.slots)
}

func (s *Simulada) Leer(slot int) (uint32, uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.slots[slot]
	return e.hi, e.lo
}

func (s *Simulada) Escribir(slot int, hi, lo uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slots[slot] = entrada{hi: hi, lo: lo}
}

// Nucleo simula la máscara de interrupciones de un núcleo. Mientras están
// enmascaradas ninguna otra goroutine puede enmascararlas; no se anida.
type Nucleo struct {
	mu    sync.Mutex
	nivel atomic.Int32
}

func (n *Nucleo) Enmascarar() int {
	n.mu.Lock()
	return int(n.nivel.Swap(1))
}

func (n *Nucleo) Restaurar(nivel int) {
	n.nivel.Store(int32(nivel))
	n.mu.Unlock()
}

// Enmascaradas indica si las interrupciones están enmascaradas ahora
func (n *Nucleo) Enmascaradas() bool {
	return n.nivel.Load() != 0
}

// RoundRobin elige el slot a pisar cuando no hay ninguno libre. Avanza uno
// por llamada sin mirar el contenido de los slots.
type RoundRobin struct {
	cantidad  uint64
	siguiente atomic.Uint64
}

func NuevoRoundRobin(cantidad int) *RoundRobin {
	if cantidad <= 0 {
		cantidad = CantidadSlots
	}
	return &RoundRobin{cantidad: uint64(cantidad)}
}

func (r *RoundRobin) SeleccionarVictima() int {
	return int((r.siguiente.Add(1) - 1) % r.cantidad)
}

// Controlador instala e invalida traducciones en la TLB con las
// interrupciones enmascaradas durante todo el recorrido de slots.
type Controlador struct {
	hw   Hardware
	intr Interrupciones
	rr   *RoundRobin
}

func NuevoControlador(hw Hardware, intr Interrupciones) *Controlador {
	return &Controlador{
		hw:   hw,
		intr: intr,
		rr:   NuevoRoundRobin(hw.Cantidad()),
	}
}

// Cantidad devuelve los slots de la TLB
func (c *Controlador) Cantidad() int {
	return c.hw.Cantidad()
}

// Instalar carga la traducción pagina -> marco. Usa un slot inválido (o el que
// ya tenga la misma página) si lo hay; si no, pisa la víctima round robin.
// Devuelve true si no hizo falta reemplazar una entrada válida.
func (c *Controlador) Instalar(pagina direcciones.Virtual, marco direcciones.Fisica, escribible bool) bool {
	hi := uint32(pagina.Pagina())
	lo := uint32(marco)&direcciones.MarcoPagina | Valido
	if escribible {
		lo |= Sucio
	}

	nivel := c.intr.Enmascarar()
	defer c.intr.Restaurar(nivel)

	libre := -1
	for i := 0; i < c.hw.Cantidad(); i++ {
		h, l := c.hw.Leer(i)
		if l&Valido != 0 && h == hi {
			libre = i
			break
		}
		if l&Valido == 0 && libre < 0 {
			libre = i
		}
	}
	if libre >= 0 {
		c.hw.Escribir(libre, hi, lo)
		return true
	}

	c.hw.Escribir(c.rr.SeleccionarVictima(), hi, lo)
	return false
}

// InvalidarDireccion borra la entrada de la página si está cargada
func (c *Controlador) InvalidarDireccion(pagina direcciones.Virtual) bool {
	hi := uint32(pagina.Pagina())

	nivel := c.intr.Enmascarar()
	defer c.intr.Restaurar(nivel)

	for i := 0; i < c.hw.Cantidad(); i++ {
		h, l := c.hw.Leer(i)
		if l&Valido != 0 && h == hi {
			c.hw.Escribir(i, HiInvalido(i), 0)
			return true
		}
	}
	return false
}

// Vaciar invalida todos los slots
func (c *Controlador) Vaciar() {
	nivel := c.intr.Enmascarar()
	defer c.intr.Restaurar(nivel)

	for i := 0; i < c.hw.Cantidad(); i++ {
		c.hw.Escribir(i, HiInvalido(i), 0)
	}
}

// Buscar es la consulta de la MMU: devuelve el marco y si admite escritura
func (c *Controlador) Buscar(pagina direcciones.Virtual) (marco direcciones.Fisica, escribible bool, ok bool) {
	hi := uint32(pagina.Pagina())

	nivel := c.intr.Enmascarar()
	defer c.intr.Restaurar(nivel)

	for i := 0; i < c.hw.Cantidad(); i++ {
		h, l := c.hw.Leer(i)
		if l&Valido != 0 && h == hi {
			return direcciones.Fisica(l & direcciones.MarcoPagina), l&Sucio != 0, true
		}
	}
	return 0, false, false
}

// Validas cuenta las entradas válidas
func (c *Controlador) Validas() int {
	nivel := c.intr.Enmascarar()
	defer c.intr.Restaurar(nivel)

	n := 0
	for i := 0; i < c.hw.Cantidad(); i++ {
		if _, l := c.hw.Leer(i); l&Valido != 0 {
			n++
		}
	}
	return n
}
