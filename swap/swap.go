// Package swap administra el área de intercambio: una tabla de slots de
// tamaño fijo sobre un dispositivo de bloques donde el slot i ocupa los bytes
// [i*TamanioPagina, (i+1)*TamanioPagina).
package swap

import (
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/direcciones"
	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/utils"
)

var (
	ErrSwapLleno            = errors.New("no quedan slots libres en SWAP")
	ErrTransferenciaParcial = errors.New("transferencia parcial con el dispositivo de SWAP")
	ErrSlotInvalido         = errors.New("slot de SWAP inválido o libre")
)

// Dispositivo es el almacenamiento de respaldo, con lecturas y escrituras posicionales
type Dispositivo interface {
	io.ReaderAt
	io.WriterAt
}

// Marcos da acceso a los bytes de un marco físico
type Marcos interface {
	Marco(i int) []byte
}

type estado int

const (
	libre estado = iota
	reservado
	ocupado
)

type slot struct {
	estado estado
	pid    direcciones.PID
	pagina direcciones.Virtual
}

// Area es la tabla de slots de SWAP
type Area struct {
	disp      Dispositivo
	marcos    Marcos
	retardoMs int

	mu    sync.Mutex
	slots []slot
}

// Nueva crea un área de capacidad slots sobre disp
func Nueva(disp Dispositivo, capacidad int, marcos Marcos, retardoMs int) *Area {
	slots := make([]slot, capacidad)
	for i := range slots {
		slots[i].pid = direcciones.SinDuenio
	}
	return &Area{
		disp:      disp,
		marcos:    marcos,
		retardoMs: retardoMs,
		slots:     slots,
	}
}

func (a *Area) Capacidad() int {
	return len(a.slots)
}

// Libres cuenta los slots sin dueño
func (a *Area) Libres() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := 0
	for _, s := range a.slots {
		if s.estado == libre {
			n++
		}
	}
	return n
}

// EstaPresente busca la página del proceso en SWAP
func (a *Area) EstaPresente(pid direcciones.PID, pagina direcciones.Virtual) (int, bool) {
	pagina = pagina.Pagina()

	a.mu.Lock()
	defer a.mu.Unlock()

	for i, s := range a.slots {
		if s.estado == ocupado && s.pid == pid && s.pagina == pagina {
			return i, true
		}
	}
	return -1, false
}

// Escribir copia el contenido del marco al primer slot libre y lo asigna a
// (pid, pagina). El slot se reserva antes de la transferencia y se devuelve
// si la transferencia falla.
func (a *Area) Escribir(pid direcciones.PID, pagina direcciones.Virtual, marco int) (int, error) {
	pagina = pagina.Pagina()

	a.mu.Lock()
	indice := -1
	for i := range a.slots {
		if a.slots[i].estado == libre {
			indice = i
			break
		}
	}
	if indice < 0 {
		a.mu.Unlock()
		return -1, errors.Wrapf(ErrSwapLleno, "desalojando página %v del proceso %d", pagina, pid)
	}
	a.slots[indice] = slot{estado: reservado, pid: pid, pagina: pagina}
	a.mu.Unlock()

	utils.AplicarRetardo("swap", a.retardoMs)

	if err := transferir(a.disp.WriteAt, a.marcos.Marco(marco), desplazamiento(indice)); err != nil {
		a.mu.Lock()
		a.slots[indice] = slot{pid: direcciones.SinDuenio}
		a.mu.Unlock()
		return -1, errors.Wrapf(err, "escribiendo el marco %d en el slot %d", marco, indice)
	}

	a.mu.Lock()
	a.slots[indice].estado = ocupado
	a.mu.Unlock()

	utils.InfoLog.Debug("Página escrita en SWAP", "pid", pid, "pagina", pagina, "marco", marco, "slot", indice)
	return indice, nil
}

// Leer copia el slot al marco y libera el slot: desde ahora la copia en
// memoria es la única.
func (a *Area) Leer(indice int, marco int) error {
	a.mu.Lock()
	if indice < 0 || indice >= len(a.slots) || a.slots[indice].estado != ocupado {
		a.mu.Unlock()
		return errors.Wrapf(ErrSlotInvalido, "slot %d", indice)
	}
	a.slots[indice].estado = reservado
	pid, pagina := a.slots[indice].pid, a.slots[indice].pagina
	a.mu.Unlock()

	utils.AplicarRetardo("swap", a.retardoMs)

	if err := transferir(a.disp.ReadAt, a.marcos.Marco(marco), desplazamiento(indice)); err != nil {
		a.mu.Lock()
		a.slots[indice].estado = ocupado
		a.mu.Unlock()
		return errors.Wrapf(err, "leyendo el slot %d al marco %d", indice, marco)
	}

	a.mu.Lock()
	a.slots[indice] = slot{pid: direcciones.SinDuenio}
	a.mu.Unlock()

	utils.InfoLog.Debug("Página leída de SWAP", "pid", pid, "pagina", pagina, "marco", marco, "slot", indice)
	return nil
}

// LiberarProceso devuelve todos los slots del proceso y cuántos eran
func (a *Area) LiberarProceso(pid direcciones.PID) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := 0
	for i := range a.slots {
		if a.slots[i].estado == ocupado && a.slots[i].pid == pid {
			a.slots[i] = slot{pid: direcciones.SinDuenio}
			n++
		}
	}
	return n
}

// Paginas lista las páginas del proceso que están en SWAP
func (a *Area) Paginas(pid direcciones.PID) []direcciones.Virtual {
	a.mu.Lock()
	defer a.mu.Unlock()

	var paginas []direcciones.Virtual
	for _, s := range a.slots {
		if s.estado == ocupado && s.pid == pid {
			paginas = append(paginas, s.pagina)
		}
	}
	return paginas
}

func desplazamiento(indice int) int64 {
	return int64(indice) * direcciones.TamanioPagina
}

func transferir(op func([]byte, int64) (int, error), buf []byte, off int64) error {
	n, err := op(buf, off)
	if n == len(buf) {
		return nil
	}
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrShortWrite) {
		return errors.Wrapf(err, "offset %d", off)
	}
	return errors.Wrapf(ErrTransferenciaParcial, "%d de %d bytes en el offset %d", n, len(buf), off)
}
