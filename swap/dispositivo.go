package swap

import (
	"io"
	"os"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"

	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/utils"
)

// Archivo es un swapfile en disco con el espacio reservado de antemano
type Archivo struct {
	f       *os.File
	fd      int
	tamanio int64
}

// AbrirArchivo crea (o trunca) el swapfile y reserva tamanio bytes
func AbrirArchivo(ruta string, tamanio int64) (*Archivo, error) {
	f, err := os.OpenFile(ruta, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, errors.Wrapf(err, "abriendo el swapfile %s", ruta)
	}
	fd := int(f.Fd())

	if err := unix.Fallocate(fd, 0, 0, tamanio); err != nil {
		// tmpfs viejos y algunos FS de red no soportan fallocate
		if !errors.Is(err, unix.EOPNOTSUPP) && !errors.Is(err, unix.ENOSYS) {
			f.Close()
			return nil, errors.Wrapf(err, "reservando %d bytes en %s", tamanio, ruta)
		}
		if err := unix.Ftruncate(fd, tamanio); err != nil {
			f.Close()
			return nil, errors.Wrapf(err, "extendiendo %s a %d bytes", ruta, tamanio)
		}
	}

	utils.InfoLog.Info("Swapfile creado", "ruta", ruta, "tamaño_bytes", tamanio)
	return &Archivo{f: f, fd: fd, tamanio: tamanio}, nil
}

func (a *Archivo) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > a.tamanio {
		return 0, io.EOF
	}
	n, err := unix.Pread(a.fd, p, off)
	if err != nil {
		return max(n, 0), errors.Wrap(err, "pread")
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (a *Archivo) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off+int64(len(p)) > a.tamanio {
		return 0, errors.Errorf("escritura fuera del swapfile: offset %d, %d bytes", off, len(p))
	}
	n, err := unix.Pwrite(a.fd, p, off)
	if err != nil {
		return max(n, 0), errors.Wrap(err, "pwrite")
	}
	return n, nil
}

func (a *Archivo) Tamanio() int64 {
	return a.tamanio
}

func (a *Archivo) Close() error {
	return a.f.Close()
}

// EnMemoria es un dispositivo de SWAP en RAM, para pruebas y configuraciones sin disco
type EnMemoria struct {
	mu    sync.RWMutex
	bytes []byte
}

func NuevoEnMemoria(tamanio int) *EnMemoria {
	return &EnMemoria{bytes: make([]byte, tamanio)}
}

func (m *EnMemoria) ReadAt(p []byte, off int64) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if off < 0 || off >= int64(len(m.bytes)) {
		return 0, io.EOF
	}
	n := copy(p, m.bytes[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *EnMemoria) WriteAt(p []byte, off int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if off < 0 || off >= int64(len(m.bytes)) {
		return 0, errors.Errorf("escritura fuera del dispositivo: offset %d", off)
	}
	n := copy(m.bytes[off:], p)
	if n < len(p) {
		return n, io.ErrShortWrite
	}
	return n, nil
}
