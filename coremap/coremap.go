// Package coremap lleva la cuenta de qué marcos físicos están libres y de
// cuántos marcos ocupa cada asignación, para poder liberarla entera.
package coremap

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/direcciones"
	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/utils"
)

var (
	ErrSinMarcos   = errors.New("no hay una corrida de marcos libres del tamaño pedido")
	ErrNoAsignado  = errors.New("no hay memoria asignada en la dirección dada")
	ErrFueraDeRAM  = errors.New("dirección fuera de la memoria física")
	ErrYaActivo    = errors.New("el coremap ya fue activado")
	ErrPedidoVacio = errors.New("cantidad de páginas inválida")
)

// Memoria es lo que el coremap necesita de la RAM: el probe y el bump allocator
type Memoria interface {
	CantidadMarcos() int
	PrimeraLibre() direcciones.Fisica
	RobarPaginas(n int) (direcciones.Fisica, error)
}

// Coremap administra los marcos físicos
type Coremap struct {
	ram Memoria

	mu           sync.Mutex // protege marcosLibres y corridas (freemem_lock)
	marcosLibres []bool     // true = libre, false = ocupado
	corridas     []int      // largo de la asignación que empieza en cada marco
	frontera     int

	muActivo sync.RWMutex // protege activo; se escribe una vez y se lee en cada asignación
	activo   bool
}

// Nuevo crea un coremap inactivo: hasta Activar todo pedido va al bump allocator
func Nuevo(ram Memoria) *Coremap {
	return &Coremap{ram: ram}
}

// Activo indica si el coremap ya administra la memoria (isTableActive)
func (c *Coremap) Activo() bool {
	c.muActivo.RLock()
	defer c.muActivo.RUnlock()
	return c.activo
}

// Activar toma el control de la memoria que quede después de los robos de
// arranque. Los marcos por debajo de la primera dirección libre quedan
// reservados para siempre y marcan la frontera de desalojo.
func (c *Coremap) Activar() error {
	if c.Activo() {
		return ErrYaActivo
	}

	total := c.ram.CantidadMarcos()
	frontera := c.ram.PrimeraLibre().Marco()

	c.mu.Lock()
	c.marcosLibres = make([]bool, total)
	c.corridas = make([]int, total)
	for i := range c.marcosLibres {
		if i < frontera {
			c.marcosLibres[i] = false
			c.corridas[i] = 1
		} else {
			c.marcosLibres[i] = true
		}
	}
	c.frontera = frontera
	c.mu.Unlock()

	c.muActivo.Lock()
	c.activo = true
	c.muActivo.Unlock()

	utils.InfoLog.Info("Coremap activo", "total_marcos", total, "marcos_reservados", frontera)
	return nil
}

// Asignar busca la primera corrida de n marcos libres y la marca ocupada.
// Antes de Activar delega en el bump allocator de la RAM. Nunca desaloja:
// si no hay corrida devuelve ErrSinMarcos.
func (c *Coremap) Asignar(n int) (direcciones.Fisica, error) {
	if n <= 0 {
		return 0, ErrPedidoVacio
	}

	if !c.Activo() {
		return c.ram.RobarPaginas(n)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	primero := -1
	encontrado := -1
	for i, libre := range c.marcosLibres {
		if !libre {
			primero = -1
			continue
		}
		if primero < 0 {
			primero = i
		}
		if i-primero+1 >= n {
			encontrado = primero
			break
		}
	}

	if encontrado < 0 {
		return 0, errors.Wrapf(ErrSinMarcos, "pedidos %d marcos", n)
	}

	for i := encontrado; i < encontrado+n; i++ {
		c.marcosLibres[i] = false
	}
	c.corridas[encontrado] = n

	utils.InfoLog.Debug("Marcos asignados", "primer_marco", encontrado, "cantidad", n)
	return direcciones.DireccionMarco(encontrado), nil
}

// Liberar devuelve todos los marcos de la asignación que empieza en direccion.
// Antes de Activar no hace nada: la memoria robada no se recupera, y después
// los marcos debajo de la frontera devuelven ErrNoAsignado.
func (c *Coremap) Liberar(direccion direcciones.Fisica) error {
	if !c.Activo() {
		return nil
	}

	primero := direccion.Marco()

	c.mu.Lock()
	defer c.mu.Unlock()

	if primero < 0 || primero >= len(c.marcosLibres) {
		return errors.Wrapf(ErrFueraDeRAM, "liberando %v", direccion)
	}
	if primero < c.frontera {
		return errors.Wrapf(ErrNoAsignado, "liberando %v: marco reservado al arrancar", direccion)
	}
	n := c.corridas[primero]
	if n == 0 || c.marcosLibres[primero] {
		return errors.Wrapf(ErrNoAsignado, "liberando %v", direccion)
	}

	for i := primero; i < primero+n; i++ {
		c.marcosLibres[i] = true
	}
	c.corridas[primero] = 0

	utils.InfoLog.Debug("Marcos liberados", "primer_marco", primero, "cantidad", n)
	return nil
}

// Frontera es el primer marco que puede elegirse como víctima de desalojo
func (c *Coremap) Frontera() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frontera
}

// Total devuelve la cantidad de marcos administrados
func (c *Coremap) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.marcosLibres)
}

// Libres cuenta los marcos libres disponibles
func (c *Coremap) Libres() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	count := 0
	for _, libre := range c.marcosLibres {
		if libre {
			count++
		}
	}
	return count
}

// Corrida devuelve el largo registrado para la asignación que empieza en marco
func (c *Coremap) Corrida(marco int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.corridas[marco]
}
