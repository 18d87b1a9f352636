// Package ipt implementa la tabla de páginas invertida: una entrada por marco
// físico con el (pid, página virtual) que lo ocupa, más la selección de
// víctimas cuando la memoria se llena.
package ipt

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"

	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/coremap"
	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/direcciones"
	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/utils"
	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/vmstats"
)

var ErrSinVictima = errors.New("no hay marcos desalojables")

// Entrada es el dueño de un marco. PID SinDuenio = marco libre, reservado o del kernel.
type Entrada struct {
	PID   direcciones.PID
	Vaddr direcciones.Virtual
}

var vacia = Entrada{PID: direcciones.SinDuenio}

// AsignadorMarcos entrega marcos libres y conoce la frontera de reservados
type AsignadorMarcos interface {
	Asignar(n int) (direcciones.Fisica, error)
	Frontera() int
}

// Desalojo guarda el contenido de un marco antes de reutilizarlo
type Desalojo interface {
	Escribir(pid direcciones.PID, pagina direcciones.Virtual, marco int) (int, error)
}

// Invalidador saca una traducción de la TLB
type Invalidador interface {
	InvalidarDireccion(pagina direcciones.Virtual) bool
}

// Residente es una página cargada en memoria
type Residente struct {
	Marco int
	Vaddr direcciones.Virtual
}

// Tabla es la IPT
type Tabla struct {
	marcos   AsignadorMarcos
	desalojo Desalojo
	tlb      Invalidador
	stats    vmstats.Notificador

	mu        sync.Mutex // protege entradas, indice y siguiente
	entradas  []Entrada
	indice    Indice
	siguiente int // cursor FIFO relativo a la frontera
}

// Nueva crea una tabla de total marcos, todos sin dueño
func Nueva(total int, indice Indice, marcos AsignadorMarcos, desalojo Desalojo, tlb Invalidador, stats vmstats.Notificador) *Tabla {
	entradas := make([]Entrada, total)
	for i := range entradas {
		entradas[i] = vacia
	}
	if indice == nil {
		indice = IndiceLineal{}
	}
	if stats == nil {
		stats = vmstats.Nulo{}
	}
	return &Tabla{
		marcos:   marcos,
		desalojo: desalojo,
		tlb:      tlb,
		stats:    stats,
		entradas: entradas,
		indice:   indice,
	}
}

func (t *Tabla) Tamanio() int {
	return len(t.entradas)
}

// EstaResidente devuelve el marco que ocupa la página del proceso
func (t *Tabla) EstaResidente(pid direcciones.PID, pagina direcciones.Virtual) (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.indice.Buscar(t.entradas, pid, pagina.Pagina())
}

// SeleccionarVictima consigue un marco para una página nueva. Primero pide
// uno libre al coremap; si no hay, desaloja el siguiente marco de usuario en
// orden FIFO (aproximado por índice creciente) a SWAP.
func (t *Tabla) SeleccionarVictima() (int, error) {
	direccion, err := t.marcos.Asignar(1)
	if err == nil {
		return direccion.Marco(), nil
	}
	if !errors.Is(err, coremap.ErrSinMarcos) {
		return -1, err
	}

	t.mu.Lock()
	frontera := t.marcos.Frontera()
	desalojables := len(t.entradas) - frontera
	victima := -1
	for i := 0; i < desalojables; i++ {
		marco := frontera + t.siguiente
		t.siguiente = (t.siguiente + 1) % desalojables
		if t.entradas[marco].PID != direcciones.SinDuenio {
			victima = marco
			break
		}
	}
	if victima < 0 {
		t.mu.Unlock()
		return -1, ErrSinVictima
	}
	duenio := t.entradas[victima]
	t.mu.Unlock()

	if _, err := t.desalojo.Escribir(duenio.PID, duenio.Vaddr, victima); err != nil {
		return -1, errors.Wrapf(err, "desalojando el marco %d", victima)
	}
	t.tlb.InvalidarDireccion(duenio.Vaddr)

	t.mu.Lock()
	t.fijar(victima, vacia)
	t.mu.Unlock()

	t.stats.Notificar(vmstats.EscrituraSwap)
	utils.InfoLog.Info(fmt.Sprintf("## PID: %d - Datos movidos a SWAP - Página: %v", duenio.PID, duenio.Vaddr), "marco", victima)
	return victima, nil
}

// FijarEntrada registra al dueño de un marco. El marco tiene que ser válido.
func (t *Tabla) FijarEntrada(marco int, pid direcciones.PID, pagina direcciones.Virtual) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fijar(marco, Entrada{PID: pid, Vaddr: pagina.Pagina()})
}

// Limpiar deja el marco sin dueño
func (t *Tabla) Limpiar(marco int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.fijar(marco, vacia)
}

func (t *Tabla) fijar(marco int, e Entrada) {
	t.indice.Actualizar(marco, t.entradas[marco], e)
	t.entradas[marco] = e
}

func (t *Tabla) Vaddr(marco int) direcciones.Virtual {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.entradas[marco].Vaddr
}

func (t *Tabla) PID(marco int) direcciones.PID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.entradas[marco].PID
}

// Residentes lista las páginas cargadas del proceso en orden de marco
func (t *Tabla) Residentes(pid direcciones.PID) []Residente {
	t.mu.Lock()
	defer t.mu.Unlock()

	var r []Residente
	for i, e := range t.entradas {
		if e.PID == pid {
			r = append(r, Residente{Marco: i, Vaddr: e.Vaddr})
		}
	}
	return r
}

// LiberarProceso limpia todas las entradas del proceso y devuelve sus marcos
func (t *Tabla) LiberarProceso(pid direcciones.PID) []int {
	t.mu.Lock()
	defer t.mu.Unlock()

	var marcos []int
	for i, e := range t.entradas {
		if e.PID == pid {
			t.fijar(i, vacia)
			marcos = append(marcos, i)
		}
	}
	return marcos
}
