package main

import (
	"cmp"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/pkg/errors"

	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/direcciones"
	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/utils"
	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/vm"
)

// crearMemoryDump vuelca las páginas residentes del proceso, ordenadas por
// dirección virtual, en DUMP_PATH/<pid>-<timestamp>.dmp. Las páginas que
// están en SWAP no se traen a memoria.
func crearMemoryDump(pid direcciones.PID) (string, int, error) {
	utils.InfoLog.Info("Iniciando memory dump", "pid", pid)

	paginas, err := sistema.VolcarProceso(pid)
	if err != nil {
		return "", 0, err
	}
	slices.SortFunc(paginas, func(a, b vm.PaginaVolcada) int {
		return cmp.Compare(a.Vaddr, b.Vaddr)
	})

	timestamp := time.Now().Format("20060102-150405")
	nombreArchivo := fmt.Sprintf("%d-%s.dmp", pid, timestamp)
	rutaCompleta := filepath.Join(config.DumpPath, nombreArchivo)

	if err := os.MkdirAll(config.DumpPath, 0755); err != nil {
		return "", 0, errors.Wrap(err, "creando directorio para dumps")
	}

	dumpFile, err := os.Create(rutaCompleta)
	if err != nil {
		return "", 0, errors.Wrap(err, "creando archivo de dump")
	}
	defer dumpFile.Close()

	for _, p := range paginas {
		if _, err := dumpFile.Write(p.Contenido); err != nil {
			return "", 0, errors.Wrapf(err, "escribiendo la página %v", p.Vaddr)
		}
		utils.InfoLog.Debug("Página volcada", "pid", pid, "pagina", p.Vaddr, "marco", p.Marco)
	}

	if enSwap, err := sistema.PaginasEnSwap(pid); err == nil && len(enSwap) > 0 {
		utils.InfoLog.Debug("Páginas en SWAP no incluidas en el dump", "pid", pid, "cantidad", len(enSwap))
	}

	// Log obligatorio
	utils.InfoLog.Info(fmt.Sprintf("## PID: %d - Memory Dump solicitado", pid))
	utils.InfoLog.Info("Memory dump completado", "pid", pid, "archivo", nombreArchivo, "paginas", len(paginas))

	return rutaCompleta, len(paginas), nil
}

// handlerMemoryDump crea un volcado de memoria para un proceso
func handlerMemoryDump(msg *utils.Mensaje) (interface{}, error) {
	pid, err := obtenerPID(msg)
	if err != nil {
		utils.ErrorLog.Error("PID no proporcionado o formato incorrecto", "error", err)
		return respuestaError(err), nil
	}

	ruta, paginas, err := crearMemoryDump(pid)
	if err != nil {
		utils.ErrorLog.Error("Error al crear memory dump", "pid", pid, "error", err)
		return respuestaError(err), nil
	}

	return map[string]interface{}{
		"status":  "OK",
		"archivo": ruta,
		"paginas": paginas,
	}, nil
}
