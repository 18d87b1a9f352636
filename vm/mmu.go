package vm

import (
	"github.com/pkg/errors"

	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/direcciones"
)

// Acceder traduce una dirección del proceso activo como lo haría la MMU:
// consulta la TLB y ante un miss levanta el fallo correspondiente y reintenta.
func (s *Sistema) Acceder(direccion direcciones.Virtual, escritura bool) (direcciones.Fisica, error) {
	if err := s.lista(); err != nil {
		return 0, err
	}
	s.fallos.Wait()
	defer s.fallos.Signal()
	return s.traducir(direccion, escritura)
}

// traducir requiere tener tomado el semáforo de fallos
func (s *Sistema) traducir(direccion direcciones.Virtual, escritura bool) (direcciones.Fisica, error) {
	for {
		marco, escribible, ok := s.tlb.Buscar(direccion)
		if ok {
			if escritura && !escribible {
				return 0, s.resolverFallo(FalloSoloLectura, direccion)
			}
			return marco + direcciones.Fisica(direccion.Desplazamiento()), nil
		}

		tipo := FalloLectura
		if escritura {
			tipo = FalloEscritura
		}
		if err := s.resolverFallo(tipo, direccion); err != nil {
			return 0, err
		}
	}
}

// Leer copia n bytes desde la dirección virtual, cruzando páginas si hace falta
func (s *Sistema) Leer(direccion direcciones.Virtual, n int) ([]byte, error) {
	if err := s.lista(); err != nil {
		return nil, err
	}
	s.fallos.Wait()
	defer s.fallos.Signal()
	return s.leer(direccion, n)
}

// LeerProceso es Leer en el espacio de pid, cambiando de contexto si hace falta
func (s *Sistema) LeerProceso(pid direcciones.PID, direccion direcciones.Virtual, n int) ([]byte, error) {
	var datos []byte
	err := s.enContexto(pid, func() error {
		var err error
		datos, err = s.leer(direccion, n)
		return err
	})
	return datos, err
}

func (s *Sistema) leer(direccion direcciones.Virtual, n int) ([]byte, error) {
	if err := validarRango(direccion, n); err != nil {
		return nil, err
	}

	datos := make([]byte, 0, n)
	for len(datos) < n {
		actual := direccion + direcciones.Virtual(len(datos))
		fisica, err := s.traducir(actual, false)
		if err != nil {
			return nil, err
		}
		marco := s.ram.Marco(fisica.Marco())[actual.Desplazamiento():]
		datos = append(datos, marco[:min(len(marco), n-len(datos))]...)
	}
	return datos, nil
}

// Escribir copia datos a partir de la dirección virtual
func (s *Sistema) Escribir(direccion direcciones.Virtual, datos []byte) error {
	if err := s.lista(); err != nil {
		return err
	}
	s.fallos.Wait()
	defer s.fallos.Signal()
	return s.escribir(direccion, datos)
}

// EscribirProceso es Escribir en el espacio de pid
func (s *Sistema) EscribirProceso(pid direcciones.PID, direccion direcciones.Virtual, datos []byte) error {
	return s.enContexto(pid, func() error {
		return s.escribir(direccion, datos)
	})
}

func (s *Sistema) escribir(direccion direcciones.Virtual, datos []byte) error {
	if err := validarRango(direccion, len(datos)); err != nil {
		return err
	}

	escritos := 0
	for escritos < len(datos) {
		actual := direccion + direcciones.Virtual(escritos)
		fisica, err := s.traducir(actual, true)
		if err != nil {
			return err
		}
		escritos += copy(s.ram.Marco(fisica.Marco())[actual.Desplazamiento():], datos[escritos:])
	}
	return nil
}

// validarRango rechaza accesos vacíos o que pasan el tope del espacio de usuario
func validarRango(direccion direcciones.Virtual, n int) error {
	if n <= 0 || uint64(direccion)+uint64(n) > direcciones.PilaUsuario {
		return errors.Wrapf(ErrDireccionInvalida, "%v + %d bytes", direccion, n)
	}
	return nil
}

// PaginaVolcada es una página residente con su contenido
type PaginaVolcada struct {
	Vaddr     direcciones.Virtual
	Marco     int
	Contenido []byte
}

// VolcarProceso copia todas las páginas residentes del proceso
func (s *Sistema) VolcarProceso(pid direcciones.PID) ([]PaginaVolcada, error) {
	if err := s.lista(); err != nil {
		return nil, err
	}
	if _, err := s.Proceso(pid); err != nil {
		return nil, err
	}

	s.fallos.Wait()
	defer s.fallos.Signal()

	residentes := s.tabla.Residentes(pid)
	paginas := make([]PaginaVolcada, 0, len(residentes))
	for _, r := range residentes {
		paginas = append(paginas, PaginaVolcada{
			Vaddr:     r.Vaddr,
			Marco:     r.Marco,
			Contenido: append([]byte(nil), s.ram.Marco(r.Marco)...),
		})
	}
	return paginas, nil
}

// PaginasEnSwap lista las páginas del proceso desalojadas a SWAP
func (s *Sistema) PaginasEnSwap(pid direcciones.PID) ([]direcciones.Virtual, error) {
	if err := s.lista(); err != nil {
		return nil, err
	}
	if _, err := s.Proceso(pid); err != nil {
		return nil, err
	}
	return s.swap.Paginas(pid), nil
}
