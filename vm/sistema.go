// Package vm es el manejador de memoria virtual por demanda: arma las tablas
// al arrancar, resuelve los fallos de TLB, administra los espacios de
// direcciones de los procesos y las páginas dinámicas del kernel.
package vm

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/coremap"
	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/direcciones"
	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/ipt"
	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/swap"
	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/tlb"
	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/utils"
	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/vmstats"
)

const TamanioSwapPorDefecto = 9 * 1024 * 1024

// bytes de bookkeeping por entrada, para calcular cuánto robar al arrancar
const (
	tamEntradaIPT     = 8
	tamSlotSwap       = 12
	tamEntradaCoremap = 9
)

const (
	sinBootstrap int32 = iota
	activa
	deshabilitada
)

// Memoria es lo que la VM usa de la RAM física
type Memoria interface {
	CantidadMarcos() int
	PrimeraLibre() direcciones.Fisica
	RobarPaginas(n int) (direcciones.Fisica, error)
	Marco(i int) []byte
	LimpiarMarco(i int)
}

type Config struct {
	EntradasTLB  int
	Indice       string // "lineal" o "hash"
	TamanioSwap  int    // bytes
	SwapfilePath string // vacío = SWAP en memoria
	RetardoSwap  int    // ms por transferencia
}

// Dependencias son los colaboradores de hardware. Los que queden en nil se
// reemplazan por sus versiones simuladas.
type Dependencias struct {
	RAM            Memoria
	Swap           swap.Dispositivo
	TLB            tlb.Hardware
	Interrupciones tlb.Interrupciones
}

// Sistema es dueño del coremap, la IPT y el área de SWAP
type Sistema struct {
	cfg   Config
	ram   Memoria
	tlb   *tlb.Controlador
	stats *vmstats.Contadores

	dispSwap swap.Dispositivo
	cerrar   io.Closer

	once         sync.Once
	errBootstrap error
	estado       atomic.Int32

	coremap *coremap.Coremap
	tabla   *ipt.Tabla
	swap    *swap.Area

	fallos *utils.Semaforo // un fallo a la vez

	mu       sync.Mutex // protege procesos y actual
	procesos map[direcciones.PID]*EspacioDirecciones
	actual   *EspacioDirecciones
}

func Nuevo(cfg Config, deps Dependencias) *Sistema {
	if cfg.TamanioSwap <= 0 {
		cfg.TamanioSwap = TamanioSwapPorDefecto
	}
	hw := deps.TLB
	if hw == nil {
		hw = tlb.NuevaSimulada(cfg.EntradasTLB)
	}
	intr := deps.Interrupciones
	if intr == nil {
		intr = &tlb.Nucleo{}
	}

	return &Sistema{
		cfg:      cfg,
		ram:      deps.RAM,
		tlb:      tlb.NuevoControlador(hw, intr),
		stats:    vmstats.NuevosContadores(),
		dispSwap: deps.Swap,
		coremap:  coremap.Nuevo(deps.RAM),
		fallos:   utils.NewSemaforo(1),
		procesos: make(map[direcciones.PID]*EspacioDirecciones),
	}
}

// Bootstrap arma las tablas. Solo tiene efecto la primera vez. Si no hay
// memoria para las tablas la VM queda deshabilitada y el kernel sigue con
// el bump allocator; solo falla si no se puede abrir el swapfile.
func (s *Sistema) Bootstrap() error {
	s.once.Do(func() {
		s.errBootstrap = s.bootstrap()
	})
	return s.errBootstrap
}

func (s *Sistema) bootstrap() error {
	total := s.ram.CantidadMarcos()
	capacidad := s.cfg.TamanioSwap / direcciones.TamanioPagina

	if s.dispSwap == nil {
		if s.cfg.SwapfilePath != "" {
			archivo, err := swap.AbrirArchivo(s.cfg.SwapfilePath, int64(capacidad)*direcciones.TamanioPagina)
			if err != nil {
				return errors.Wrap(err, "creando el swapfile")
			}
			s.dispSwap, s.cerrar = archivo, archivo
		} else {
			s.dispSwap = swap.NuevoEnMemoria(capacidad * direcciones.TamanioPagina)
		}
	}

	tablas := []struct {
		nombre string
		bytes  int
	}{
		{"tabla de páginas invertida", total * tamEntradaIPT},
		{"tabla de SWAP", capacidad * tamSlotSwap},
		{"coremap", total * tamEntradaCoremap},
	}
	for _, t := range tablas {
		if _, err := s.coremap.Asignar(direcciones.PaginasPara(t.bytes)); err != nil {
			utils.ErrorLog.Error("Sin memoria para las tablas de la VM, queda deshabilitada",
				"tabla", t.nombre, "bytes", t.bytes, "error", err)
			s.estado.Store(deshabilitada)
			return nil
		}
	}

	s.swap = swap.Nueva(s.dispSwap, capacidad, s.ram, s.cfg.RetardoSwap)
	if err := s.coremap.Activar(); err != nil {
		return errors.Wrap(err, "activando el coremap")
	}
	s.tabla = ipt.Nueva(total, ipt.NuevoIndice(s.cfg.Indice), s.coremap, s.swap, s.tlb, s.stats)
	s.estado.Store(activa)

	utils.InfoLog.Info("VM inicializada",
		"marcos", total,
		"marcos_libres", s.coremap.Libres(),
		"frontera", s.coremap.Frontera(),
		"slots_swap", capacidad,
		"entradas_tlb", s.tlb.Cantidad(),
		"indice_ipt", s.cfg.Indice)
	return nil
}

// Habilitada indica si la VM administra la memoria
func (s *Sistema) Habilitada() bool {
	return s.estado.Load() == activa
}

func (s *Sistema) lista() error {
	switch s.estado.Load() {
	case sinBootstrap:
		return ErrSinBootstrap
	case deshabilitada:
		return ErrVMDeshabilitada
	}
	return nil
}

// CrearProceso registra un espacio de direcciones vacío
func (s *Sistema) CrearProceso(pid direcciones.PID) (*EspacioDirecciones, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.procesos[pid]; ok {
		return nil, errors.Wrapf(ErrProcesoExistente, "pid %d", pid)
	}
	e := nuevoEspacio(pid)
	s.procesos[pid] = e

	utils.InfoLog.Info(fmt.Sprintf("## PID: %d - Proceso Creado", pid))
	return e, nil
}

// Proceso devuelve el espacio de direcciones del proceso
func (s *Sistema) Proceso(pid direcciones.PID) (*EspacioDirecciones, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.procesos[pid]
	if !ok {
		return nil, errors.Wrapf(ErrProcesoInexistente, "pid %d", pid)
	}
	return e, nil
}

// ActivarProceso hace actual el espacio del proceso e invalida toda la TLB.
// Espera a que termine el fallo en curso.
func (s *Sistema) ActivarProceso(pid direcciones.PID) error {
	return s.fallos.Ejecutar(func() error {
		return s.activar(pid)
	})
}

// activar requiere tener tomado el semáforo de fallos
func (s *Sistema) activar(pid direcciones.PID) error {
	e, err := s.Proceso(pid)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.actual = e
	s.mu.Unlock()

	s.tlb.Vaciar()
	s.stats.Notificar(vmstats.InvalidacionTLB)

	utils.InfoLog.Debug("Espacio de direcciones activado", "pid", pid)
	return nil
}

// enContexto corre f con el espacio del proceso activo. El cambio de
// contexto y f quedan bajo la misma toma del semáforo de fallos.
func (s *Sistema) enContexto(pid direcciones.PID, f func() error) error {
	if err := s.lista(); err != nil {
		return err
	}
	return s.fallos.Ejecutar(func() error {
		if actual := s.EspacioActivo(); actual == nil || actual.PID != pid {
			if err := s.activar(pid); err != nil {
				return err
			}
		}
		return f()
	})
}

// EspacioActivo devuelve el espacio actual o nil
func (s *Sistema) EspacioActivo() *EspacioDirecciones {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.actual
}

// DestruirProceso libera en el momento todos los marcos y slots del proceso
func (s *Sistema) DestruirProceso(pid direcciones.PID) error {
	return s.fallos.Ejecutar(func() error {
		return s.destruir(pid)
	})
}

func (s *Sistema) destruir(pid direcciones.PID) error {
	s.mu.Lock()
	e, ok := s.procesos[pid]
	if !ok {
		s.mu.Unlock()
		return errors.Wrapf(ErrProcesoInexistente, "pid %d", pid)
	}
	delete(s.procesos, pid)
	eraActual := s.actual == e
	if eraActual {
		s.actual = nil
	}
	s.mu.Unlock()

	if eraActual {
		s.tlb.Vaciar()
	}

	var marcos []int
	var slots int
	if s.Habilitada() {
		marcos = s.tabla.LiberarProceso(pid)
		for _, m := range marcos {
			s.ram.LimpiarMarco(m)
			if err := s.coremap.Liberar(direcciones.DireccionMarco(m)); err != nil {
				utils.ErrorLog.Error("No se pudo liberar el marco", "pid", pid, "marco", m, "error", err)
			}
		}
		slots = s.swap.LiberarProceso(pid)
	}
	e.liberarImagen()

	utils.InfoLog.Info(fmt.Sprintf("## PID: %d - Proceso Destruido - Marcos liberados: %d - Slots SWAP liberados: %d", pid, len(marcos), slots))
	return nil
}

// AsignarPaginasKernel entrega n páginas contiguas para el kernel y devuelve
// su dirección en kseg0. Con la memoria llena, un pedido de una página
// desaloja un marco de usuario.
func (s *Sistema) AsignarPaginasKernel(n int) (uint32, error) {
	if !s.Habilitada() {
		direccion, err := s.coremap.Asignar(n)
		if err != nil {
			return 0, err
		}
		return direcciones.FisicaAKernel(direccion), nil
	}

	s.fallos.Wait()
	defer s.fallos.Signal()

	direccion, err := s.coremap.Asignar(n)
	if err == nil {
		return direcciones.FisicaAKernel(direccion), nil
	}
	if !errors.Is(err, coremap.ErrSinMarcos) || n != 1 {
		return 0, err
	}

	marco, err := s.tabla.SeleccionarVictima()
	if err != nil {
		return 0, errors.Wrap(err, "buscando una página para el kernel")
	}
	s.tabla.Limpiar(marco)
	s.ram.LimpiarMarco(marco)

	utils.InfoLog.Debug("Marco de usuario tomado por el kernel", "marco", marco)
	return direcciones.FisicaAKernel(direcciones.DireccionMarco(marco)), nil
}

// LiberarPaginasKernel devuelve una asignación hecha con AsignarPaginasKernel
func (s *Sistema) LiberarPaginasKernel(kv uint32) error {
	if kv < direcciones.KSeg0 {
		return errors.Wrapf(ErrDireccionInvalida, "%#x no es una dirección de kernel", kv)
	}
	return s.coremap.Liberar(direcciones.KernelAFisica(kv))
}

// Estadisticas devuelve una foto de los contadores
func (s *Sistema) Estadisticas() vmstats.Resumen {
	return s.stats.Instantanea()
}

// Contadores expone los contadores para verificarlos o imprimirlos
func (s *Sistema) Contadores() *vmstats.Contadores {
	return s.stats
}

// Estado resume la ocupación de memoria y SWAP
type Estado struct {
	Habilitada  bool `json:"habilitada"`
	Marcos      int  `json:"marcos"`
	MarcosLibre int  `json:"marcos_libres"`
	Frontera    int  `json:"frontera"`
	SlotsSwap   int  `json:"slots_swap"`
	SlotsLibres int  `json:"slots_libres"`
	Procesos    int  `json:"procesos"`
	EntradasTLB int  `json:"entradas_tlb"`

	EsperasFallos uint64 `json:"esperas_fallos"` // accesos que esperaron a otro fallo en curso
}

func (s *Sistema) Estado() Estado {
	s.mu.Lock()
	procesos := len(s.procesos)
	s.mu.Unlock()

	e := Estado{
		Habilitada:  s.Habilitada(),
		Marcos:      s.ram.CantidadMarcos(),
		Procesos:    procesos,
		EntradasTLB: s.tlb.Cantidad(),

		EsperasFallos: s.fallos.Esperas(),
	}
	if e.Habilitada {
		e.Marcos = s.coremap.Total()
		e.MarcosLibre = s.coremap.Libres()
		e.Frontera = s.coremap.Frontera()
		e.SlotsSwap = s.swap.Capacidad()
		e.SlotsLibres = s.swap.Libres()
	}
	return e
}

// Apagar imprime los contadores y cierra el swapfile
func (s *Sistema) Apagar() error {
	s.stats.Imprimir(utils.InfoLog)
	if s.cerrar != nil {
		return s.cerrar.Close()
	}
	return nil
}
