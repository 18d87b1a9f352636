// Package imagen lee ejecutables ELF y extrae los segmentos cargables que
// definen las regiones de texto y datos de un espacio de direcciones.
package imagen

import (
	"debug/elf"
	"io"
	"math"
	"os"

	"github.com/pkg/errors"

	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/direcciones"
)

var (
	ErrNoEsELF              = errors.New("el archivo no tiene formato ELF")
	ErrSinTexto             = errors.New("el ELF no tiene segmento de texto cargable")
	ErrDemasiadosSegmentos  = errors.New("el ELF tiene más de un segmento de texto o de datos")
	ErrSegmentoFueraDeRango = errors.New("segmento fuera del espacio de usuario")
)

// Segmento es un PT_LOAD: dónde va en memoria y qué parte del archivo lo respalda
type Segmento struct {
	Vaddr  direcciones.Virtual
	Memsz  uint32 // tamaño en memoria
	Filesz uint32 // bytes presentes en el archivo; el resto es cero
	Offset int64  // posición de los bytes en el archivo
}

// Imagen es un ejecutable abierto. Sirve de io.ReaderAt para los fallos de
// página, así que tiene que quedar abierto mientras viva el proceso.
type Imagen struct {
	Ruta    string
	Entrada direcciones.Virtual
	Texto   Segmento
	Datos   Segmento

	archivo *os.File
}

// CargarELF abre el ejecutable y ubica sus segmentos
func CargarELF(ruta string) (*Imagen, error) {
	fp, err := os.Open(ruta)
	if err != nil {
		return nil, errors.Wrapf(err, "abriendo %s", ruta)
	}

	f, err := elf.NewFile(fp)
	if err != nil {
		fp.Close()
		var formato *elf.FormatError
		if errors.As(err, &formato) {
			return nil, errors.Wrapf(ErrNoEsELF, "%s", ruta)
		}
		return nil, errors.Wrapf(err, "leyendo %s", ruta)
	}

	texto, datos, err := Segmentos(f.Progs)
	if err != nil {
		fp.Close()
		return nil, errors.Wrapf(err, "%s", ruta)
	}
	if f.Entry > math.MaxUint32 {
		fp.Close()
		return nil, errors.Wrapf(ErrSegmentoFueraDeRango, "punto de entrada %#x", f.Entry)
	}

	return &Imagen{
		Ruta:    ruta,
		Entrada: direcciones.Virtual(f.Entry),
		Texto:   texto,
		Datos:   datos,
		archivo: fp,
	}, nil
}

// Segmentos separa los PT_LOAD en texto (ejecutable) y datos (escribible).
// El segmento de datos es opcional.
func Segmentos(progs []*elf.Prog) (texto, datos Segmento, err error) {
	var hayTexto, hayDatos bool

	for _, p := range progs {
		if p.Type != elf.PT_LOAD {
			continue
		}
		if p.Vaddr+p.Memsz > direcciones.PilaUsuario || p.Filesz > p.Memsz {
			return texto, datos, errors.Wrapf(ErrSegmentoFueraDeRango, "vaddr %#x memsz %#x filesz %#x", p.Vaddr, p.Memsz, p.Filesz)
		}
		s := Segmento{
			Vaddr:  direcciones.Virtual(p.Vaddr),
			Memsz:  uint32(p.Memsz),
			Filesz: uint32(p.Filesz),
			Offset: int64(p.Off),
		}

		switch {
		case p.Flags&elf.PF_X != 0:
			if hayTexto {
				return texto, datos, ErrDemasiadosSegmentos
			}
			texto, hayTexto = s, true
		case p.Flags&elf.PF_W != 0:
			if hayDatos {
				return texto, datos, ErrDemasiadosSegmentos
			}
			datos, hayDatos = s, true
		}
	}

	if !hayTexto {
		return texto, datos, ErrSinTexto
	}
	return texto, datos, nil
}

func (i *Imagen) ReadAt(p []byte, off int64) (int, error) {
	return i.archivo.ReadAt(p, off)
}

func (i *Imagen) Close() error {
	return i.archivo.Close()
}

var _ io.ReaderAt = (*Imagen)(nil)
