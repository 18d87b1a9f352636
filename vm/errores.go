package vm

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/direcciones"
)

var (
	ErrDireccionInvalida  = errors.New("dirección fuera de las regiones del proceso")
	ErrViolacionPermiso   = errors.New("escritura sobre una página de solo lectura")
	ErrSinEspacioActivo   = errors.New("fallo de página sin espacio de direcciones activo")
	ErrSinBootstrap       = errors.New("la VM no fue inicializada")
	ErrVMDeshabilitada    = errors.New("la VM está deshabilitada por falta de memoria al arrancar")
	ErrDemasiadasRegiones = errors.New("solo se soportan dos regiones por espacio de direcciones")
	ErrRegionInvalida     = errors.New("región fuera del espacio de usuario")
	ErrLecturaParcial     = errors.New("lectura parcial de la imagen")
	ErrTipoFalloInvalido  = errors.New("tipo de fallo desconocido")
	ErrProcesoInexistente = errors.New("el proceso no existe")
	ErrProcesoExistente   = errors.New("el proceso ya existe")
)

// ErrProcesoTerminado indica que el fallo terminó con el proceso que lo
// provocó. El kernel sigue funcionando.
type ErrProcesoTerminado struct {
	PID   direcciones.PID
	Causa error
}

func (e *ErrProcesoTerminado) Error() string {
	return fmt.Sprintf("proceso %d terminado: %v", e.PID, e.Causa)
}

func (e *ErrProcesoTerminado) Unwrap() error {
	return e.Causa
}

// Cause permite usar errors.Cause de pkg/errors
func (e *ErrProcesoTerminado) Cause() error {
	return e.Causa
}
