package vm

import (
	"io"
	"sync"

	"github.com/pkg/errors"

	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/direcciones"
	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/imagen"
	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/utils"
)

type TipoRegion int

const (
	RegionTexto TipoRegion = iota
	RegionDatos
	RegionPila
)

func (t TipoRegion) String() string {
	switch t {
	case RegionTexto:
		return "texto"
	case RegionDatos:
		return "datos"
	case RegionPila:
		return "pila"
	}
	return "desconocida"
}

// Region es un tramo del espacio de direcciones respaldado por la imagen.
// Los bytes [Vaddr, Vaddr+TamanioArchivo) salen del archivo a partir de
// Offset; el resto de las páginas se llena con ceros.
type Region struct {
	Tipo           TipoRegion
	Vaddr          direcciones.Virtual // sin alinear
	Base           direcciones.Virtual // Vaddr alineada a página
	Paginas        int
	Offset         int64
	TamanioArchivo uint32

	imagen io.ReaderAt
}

// Tope es la primera dirección después de la región
func (r Region) Tope() direcciones.Virtual {
	return r.Base + direcciones.Virtual(r.Paginas*direcciones.TamanioPagina)
}

func (r Region) Contiene(v direcciones.Virtual) bool {
	return v >= r.Base && v < r.Tope()
}

// EspacioDirecciones es el espacio de un proceso: texto, datos y la pila
// implícita entre el fin de los datos y PilaUsuario.
type EspacioDirecciones struct {
	PID direcciones.PID

	mu       sync.Mutex
	regiones []Region
	cerrar   func() error
}

func nuevoEspacio(pid direcciones.PID) *EspacioDirecciones {
	return &EspacioDirecciones{PID: pid}
}

// DefinirRegion agrega la región de texto (primera llamada) o de datos
// (segunda). Una tercera devuelve ErrDemasiadasRegiones.
func (e *EspacioDirecciones) DefinirRegion(vaddr direcciones.Virtual, tamanio, tamanioArchivo uint32, offset int64, img io.ReaderAt) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.regiones) >= 2 {
		utils.ErrorLog.Warn("Demasiadas regiones", "pid", e.PID, "vaddr", vaddr)
		return ErrDemasiadasRegiones
	}
	if tamanioArchivo > tamanio {
		utils.ErrorLog.Warn("El tamaño en archivo supera al de memoria, se recorta", "pid", e.PID, "vaddr", vaddr)
		tamanioArchivo = tamanio
	}

	paginas := direcciones.PaginasPara(int(tamanio) + int(vaddr.Desplazamiento()))
	tope := uint64(vaddr.Pagina()) + uint64(paginas)*direcciones.TamanioPagina
	if tope > direcciones.PilaUsuario {
		return errors.Wrapf(ErrRegionInvalida, "%v + %d bytes", vaddr, tamanio)
	}

	r := Region{
		Tipo:           TipoRegion(len(e.regiones)),
		Vaddr:          vaddr,
		Base:           vaddr.Pagina(),
		Paginas:        paginas,
		Offset:         offset,
		TamanioArchivo: tamanioArchivo,
		imagen:         img,
	}
	e.regiones = append(e.regiones, r)

	utils.InfoLog.Debug("Región definida", "pid", e.PID, "tipo", r.Tipo, "base", r.Base, "paginas", r.Paginas)
	return nil
}

// CargarImagen define las regiones a partir de un ELF. El espacio se queda
// con la imagen y la cierra al destruirse.
func (e *EspacioDirecciones) CargarImagen(img *imagen.Imagen) error {
	if err := e.DefinirRegion(img.Texto.Vaddr, img.Texto.Memsz, img.Texto.Filesz, img.Texto.Offset, img); err != nil {
		return err
	}
	if img.Datos.Memsz > 0 {
		if err := e.DefinirRegion(img.Datos.Vaddr, img.Datos.Memsz, img.Datos.Filesz, img.Datos.Offset, img); err != nil {
			return err
		}
	}

	e.mu.Lock()
	e.cerrar = img.Close
	e.mu.Unlock()
	return nil
}

// DefinirPila devuelve el puntero de pila inicial
func (e *EspacioDirecciones) DefinirPila() direcciones.Virtual {
	return direcciones.PilaUsuario
}

// Clasificar ubica la página en texto, datos o pila
func (e *EspacioDirecciones) Clasificar(v direcciones.Virtual) (Region, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.regiones) == 0 {
		return Region{}, errors.Wrapf(ErrDireccionInvalida, "%v: el proceso %d no tiene regiones", v, e.PID)
	}

	for _, r := range e.regiones {
		if r.Contiene(v) {
			return r, nil
		}
	}

	finDatos := e.regiones[len(e.regiones)-1].Tope()
	if v >= finDatos && uint64(v) < direcciones.PilaUsuario {
		return Region{Tipo: RegionPila, Base: finDatos, Vaddr: finDatos}, nil
	}
	return Region{}, errors.Wrapf(ErrDireccionInvalida, "%v", v)
}

// Regiones devuelve una copia de las regiones definidas
func (e *EspacioDirecciones) Regiones() []Region {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Region(nil), e.regiones...)
}

func (e *EspacioDirecciones) liberarImagen() {
	e.mu.Lock()
	cerrar := e.cerrar
	e.cerrar = nil
	e.mu.Unlock()

	if cerrar != nil {
		if err := cerrar(); err != nil {
			utils.ErrorLog.Warn("Error cerrando la imagen", "pid", e.PID, "error", err)
		}
	}
}
