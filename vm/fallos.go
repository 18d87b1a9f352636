package vm

import (
	"fmt"
	"io"

	"github.com/pkg/errors"

	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/direcciones"
	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/utils"
	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/vmstats"
)

type TipoFallo int

const (
	FalloLectura TipoFallo = iota
	FalloEscritura
	FalloSoloLectura // escritura sobre una entrada sin permiso de escritura
)

func (t TipoFallo) String() string {
	switch t {
	case FalloLectura:
		return "lectura"
	case FalloEscritura:
		return "escritura"
	case FalloSoloLectura:
		return "solo lectura"
	}
	return fmt.Sprintf("TipoFallo(%d)", int(t))
}

type origen int

const (
	origenCeros origen = iota
	origenELF
	origenSwap
)

// ResolverFallo atiende un fallo de TLB del proceso activo. Devuelve nil con
// la traducción instalada, un ErrDireccionInvalida si la dirección no
// pertenece al proceso, o un *ErrProcesoTerminado si el proceso no puede
// seguir.
func (s *Sistema) ResolverFallo(tipo TipoFallo, direccion direcciones.Virtual) error {
	if err := s.lista(); err != nil {
		return err
	}

	s.fallos.Wait()
	defer s.fallos.Signal()
	return s.resolverFallo(tipo, direccion)
}

// ResolverFalloProceso atiende el fallo en el espacio de pid
func (s *Sistema) ResolverFalloProceso(pid direcciones.PID, tipo TipoFallo, direccion direcciones.Virtual) error {
	return s.enContexto(pid, func() error {
		return s.resolverFallo(tipo, direccion)
	})
}

func (s *Sistema) resolverFallo(tipo TipoFallo, direccion direcciones.Virtual) error {
	switch tipo {
	case FalloLectura, FalloEscritura, FalloSoloLectura:
	default:
		return errors.Wrapf(ErrTipoFalloInvalido, "%v", tipo)
	}

	espacio := s.EspacioActivo()
	if espacio == nil {
		return errors.Wrapf(ErrSinEspacioActivo, "fallo de %v en %v", tipo, direccion)
	}
	pid := espacio.PID
	pagina := direccion.Pagina()

	if tipo == FalloSoloLectura {
		return s.terminar(espacio, errors.Wrapf(ErrViolacionPermiso, "dirección %v", direccion))
	}

	region, err := espacio.Clasificar(pagina)
	if err != nil {
		utils.InfoLog.Warn("Fallo de direccionamiento", "pid", pid, "direccion", direccion, "tipo", tipo)
		return err
	}

	marco, residente := s.tabla.EstaResidente(pid, pagina)
	if residente {
		s.stats.Notificar(vmstats.RecargaTLB)
	} else {
		marco, err = s.tabla.SeleccionarVictima()
		if err != nil {
			return s.terminar(espacio, err)
		}
		// la entrada se registra antes de cargar para que nadie más tome otro marco para la página
		s.tabla.FijarEntrada(marco, pid, pagina)

		o, err := s.cargarPagina(pid, region, pagina, marco)
		if err != nil {
			return s.terminar(espacio, err)
		}
		switch o {
		case origenSwap:
			s.stats.Notificar(vmstats.FalloPaginaDisco)
			s.stats.Notificar(vmstats.FalloPaginaSwap)
			utils.InfoLog.Info(fmt.Sprintf("## PID: %d - Página %v cargada desde SWAP al marco %d", pid, pagina, marco))
		case origenELF:
			s.stats.Notificar(vmstats.FalloPaginaDisco)
			s.stats.Notificar(vmstats.FalloPaginaELF)
			utils.InfoLog.Info(fmt.Sprintf("## PID: %d - Página %v cargada desde ELF al marco %d", pid, pagina, marco))
		default:
			s.stats.Notificar(vmstats.FalloPaginaCero)
			utils.InfoLog.Debug("Página llenada con ceros", "pid", pid, "pagina", pagina, "marco", marco, "region", region.Tipo)
		}
	}

	libre := s.tlb.Instalar(pagina, direcciones.DireccionMarco(marco), region.Tipo != RegionTexto)
	s.stats.Notificar(vmstats.FalloTLB)
	if libre {
		s.stats.Notificar(vmstats.FalloTLBLibre)
	} else {
		s.stats.Notificar(vmstats.FalloTLBReemplazo)
	}
	return nil
}

// cargarPagina llena el marco: desde SWAP si la página fue desalojada, si no
// con los bytes de la imagen que caen en la página y ceros en el resto.
func (s *Sistema) cargarPagina(pid direcciones.PID, region Region, pagina direcciones.Virtual, marco int) (origen, error) {
	if slot, ok := s.swap.EstaPresente(pid, pagina); ok {
		if err := s.swap.Leer(slot, marco); err != nil {
			return origenSwap, err
		}
		return origenSwap, nil
	}

	s.ram.LimpiarMarco(marco)
	if region.Tipo == RegionPila || region.imagen == nil {
		return origenCeros, nil
	}

	desde := max(uint64(pagina), uint64(region.Vaddr))
	hasta := min(uint64(pagina)+direcciones.TamanioPagina, uint64(region.Vaddr)+uint64(region.TamanioArchivo))
	if desde >= hasta {
		return origenCeros, nil
	}

	destino := s.ram.Marco(marco)[desde-uint64(pagina) : hasta-uint64(pagina)]
	offset := region.Offset + int64(desde-uint64(region.Vaddr))
	n, err := region.imagen.ReadAt(destino, offset)
	if n == len(destino) {
		return origenELF, nil
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return origenELF, errors.Wrapf(err, "leyendo la imagen en el offset %d", offset)
	}
	return origenELF, errors.Wrapf(ErrLecturaParcial, "%d de %d bytes en el offset %d", n, len(destino), offset)
}

// terminar destruye el proceso que provocó el fallo
func (s *Sistema) terminar(espacio *EspacioDirecciones, causa error) error {
	s.stats.Notificar(vmstats.ProcesoTerminado)
	utils.ErrorLog.Error("Proceso terminado por fallo de página", "pid", espacio.PID, "causa", causa)

	if err := s.destruir(espacio.PID); err != nil {
		utils.ErrorLog.Warn("El proceso ya no existía", "pid", espacio.PID, "error", err)
	}
	return &ErrProcesoTerminado{PID: espacio.PID, Causa: causa}
}
