// Package ram simula la memoria física instalada: el probe de tamaño y
// primera dirección libre, el bump allocator de arranque (ram_stealmem) y el
// acceso a los bytes de cada marco.
package ram

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/direcciones"
	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/utils"
)

var ErrSinMemoria = errors.New("no queda memoria física sin administrar")

// Memoria es la RAM simulada
type Memoria struct {
	bytes []byte

	mu           sync.Mutex // protege primeraLibre (stealmem_lock)
	primeraLibre direcciones.Fisica
}

// Nueva crea una RAM de tamanio bytes (redondeado a páginas) donde los
// primeros kernel bytes ya están ocupados por la imagen estática del kernel
func Nueva(tamanio int, kernel int) (*Memoria, error) {
	marcos := tamanio / direcciones.TamanioPagina
	if marcos <= 0 {
		return nil, errors.Errorf("tamaño de memoria inválido: %d", tamanio)
	}
	ocupadas := direcciones.PaginasPara(kernel)
	if ocupadas > marcos {
		return nil, errors.Errorf("la imagen del kernel (%d bytes) no entra en %d bytes de memoria", kernel, tamanio)
	}

	utils.InfoLog.Info("Memoria física inicializada",
		"tamaño_bytes", marcos*direcciones.TamanioPagina,
		"marcos", marcos,
		"marcos_kernel", ocupadas)

	return &Memoria{
		bytes:        make([]byte, marcos*direcciones.TamanioPagina),
		primeraLibre: direcciones.DireccionMarco(ocupadas),
	}, nil
}

// Tamanio devuelve los bytes instalados (ram_getsize)
func (m *Memoria) Tamanio() int {
	return len(m.bytes)
}

// CantidadMarcos devuelve cuántos marcos hay en total
func (m *Memoria) CantidadMarcos() int {
	return len(m.bytes) / direcciones.TamanioPagina
}

// PrimeraLibre devuelve la primera dirección física que nadie robó todavía (ram_getfirstfree)
func (m *Memoria) PrimeraLibre() direcciones.Fisica {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.primeraLibre
}

// RobarPaginas entrega n páginas contiguas de memoria que nunca se devuelve
func (m *Memoria) RobarPaginas(n int) (direcciones.Fisica, error) {
	if n <= 0 {
		return 0, errors.Errorf("cantidad de páginas inválida: %d", n)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	direccion := m.primeraLibre
	fin := int(direccion) + n*direcciones.TamanioPagina
	if fin > len(m.bytes) {
		return 0, errors.Wrapf(ErrSinMemoria, "pedidas %d páginas desde %v", n, direccion)
	}
	m.primeraLibre = direcciones.Fisica(fin)

	utils.InfoLog.Debug("Páginas robadas", "paginas", n, "direccion", direccion)
	return direccion, nil
}

// Marco devuelve la vista de los bytes de un marco. El slice apunta a la RAM:
// escribir en él escribe en memoria física.
func (m *Memoria) Marco(indice int) []byte {
	inicio := indice * direcciones.TamanioPagina
	return m.bytes[inicio : inicio+direcciones.TamanioPagina : inicio+direcciones.TamanioPagina]
}

// LimpiarMarco pone en cero un marco completo (as_zero_region)
func (m *Memoria) LimpiarMarco(indice int) {
	clear(m.Marco(indice))
}
