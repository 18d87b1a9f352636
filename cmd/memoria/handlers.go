package main

import (
	"encoding/base64"
	"fmt"
	"math"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/direcciones"
	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/imagen"
	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/utils"
	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/vm"
)

// respuestaError arma la respuesta {"error": ...} que esperan los otros módulos.
// Si el proceso murió por el fallo se avisa con "terminado".
func respuestaError(err error) map[string]interface{} {
	respuesta := map[string]interface{}{
		"error": err.Error(),
	}
	var terminado *vm.ErrProcesoTerminado
	if errors.As(err, &terminado) {
		respuesta["terminado"] = true
		respuesta["pid"] = int(terminado.PID)
	}
	return respuesta
}

func obtenerPID(msg *utils.Mensaje) (direcciones.PID, error) {
	pid, err := utils.ObtenerEntero(msg, "pid")
	if err != nil {
		return 0, err
	}
	if pid < 0 {
		return 0, errors.Errorf("pid inválido: %d", pid)
	}
	return direcciones.PID(pid), nil
}

func obtenerDireccion(msg *utils.Mensaje, clave string) (uint32, error) {
	valor, err := utils.ObtenerEntero(msg, clave)
	if err != nil {
		return 0, err
	}
	if valor < 0 || uint64(valor) > math.MaxUint32 {
		return 0, errors.Errorf("%s fuera de rango: %d", clave, valor)
	}
	return uint32(valor), nil
}

// Handler para handshake
func handlerHandshake(msg *utils.Mensaje) (interface{}, error) {
	utils.InfoLog.Info("Handshake recibido", "origen", msg.Origen)

	estado := sistema.Estado()
	return map[string]interface{}{
		"status":       "OK",
		"tam_pagina":   direcciones.TamanioPagina,
		"pila_usuario": uint32(direcciones.PilaUsuario),
		"entradas_tlb": estado.EntradasTLB,
		"habilitada":   estado.Habilitada,
	}, nil
}

// handlerInicializarProceso crea el espacio de direcciones. Con "archivo" las
// regiones salen del ELF en IMAGES_PATH; con "regiones" se definen regiones
// anónimas llenas de ceros.
func handlerInicializarProceso(msg *utils.Mensaje) (interface{}, error) {
	pid, err := obtenerPID(msg)
	if err != nil {
		utils.ErrorLog.Error("PID no proporcionado o formato incorrecto", "error", err)
		return respuestaError(err), nil
	}

	archivo, _ := utils.ObtenerTexto(msg, "archivo")
	regiones, err := obtenerRegiones(msg)
	if err != nil {
		return respuestaError(err), nil
	}
	if archivo == "" && len(regiones) == 0 {
		return respuestaError(errors.New("se necesita un archivo o una lista de regiones")), nil
	}

	var img *imagen.Imagen
	if archivo != "" {
		img, err = imagen.CargarELF(filepath.Join(config.ImagesPath, archivo))
		if err != nil {
			utils.ErrorLog.Error("Error cargando el ejecutable", "pid", pid, "archivo", archivo, "error", err)
			return respuestaError(err), nil
		}
	}

	espacio, err := sistema.CrearProceso(pid)
	if err != nil {
		if img != nil {
			img.Close()
		}
		return respuestaError(err), nil
	}

	if img != nil {
		err = espacio.CargarImagen(img)
		if err != nil {
			img.Close()
		}
	} else {
		for _, r := range regiones {
			if err = espacio.DefinirRegion(direcciones.Virtual(r.vaddr), r.tamanio, 0, 0, nil); err != nil {
				break
			}
		}
	}
	if err != nil {
		utils.ErrorLog.Error("Error definiendo las regiones", "pid", pid, "error", err)
		if errDestruir := sistema.DestruirProceso(pid); errDestruir != nil {
			utils.ErrorLog.Warn("Error deshaciendo el proceso", "pid", pid, "error", errDestruir)
		}
		return respuestaError(err), nil
	}

	respuesta := map[string]interface{}{
		"status": "OK",
		"pid":    int(pid),
		"pila":   uint32(espacio.DefinirPila()),
	}
	if img != nil {
		respuesta["entrada"] = img.Entrada
	}
	return respuesta, nil
}

type regionAnonima struct {
	vaddr   uint32
	tamanio uint32
}

func obtenerRegiones(msg *utils.Mensaje) ([]regionAnonima, error) {
	datos, ok := msg.Datos.(map[string]interface{})
	if !ok {
		return nil, errors.New("formato de datos incorrecto")
	}
	lista, ok := datos["regiones"].([]interface{})
	if !ok {
		return nil, nil
	}

	regiones := make([]regionAnonima, 0, len(lista))
	for i, elemento := range lista {
		r, ok := elemento.(map[string]interface{})
		if !ok {
			return nil, errors.Errorf("región %d con formato incorrecto", i)
		}
		vaddr, okV := r["vaddr"].(float64)
		tamanio, okT := r["tamanio"].(float64)
		if !okV || !okT || vaddr < 0 || tamanio <= 0 {
			return nil, errors.Errorf("región %d sin vaddr o tamanio válidos", i)
		}
		regiones = append(regiones, regionAnonima{vaddr: uint32(vaddr), tamanio: uint32(tamanio)})
	}
	return regiones, nil
}

func handlerFinalizarProceso(msg *utils.Mensaje) (interface{}, error) {
	pid, err := obtenerPID(msg)
	if err != nil {
		utils.ErrorLog.Error("PID no proporcionado o formato incorrecto", "error", err)
		return respuestaError(err), nil
	}

	// con "dump" se vuelca la memoria del proceso antes de liberarla
	if utils.ObtenerBool(msg, "dump", false) {
		if _, _, err := crearMemoryDump(pid); err != nil {
			utils.ErrorLog.Warn("No se pudo volcar el proceso antes de finalizarlo", "pid", pid, "error", err)
		}
	}

	if err := sistema.DestruirProceso(pid); err != nil {
		utils.ErrorLog.Error("Error finalizando proceso", "pid", pid, "error", err)
		return respuestaError(err), nil
	}

	return map[string]interface{}{"status": "OK"}, nil
}

func handlerActivarProceso(msg *utils.Mensaje) (interface{}, error) {
	pid, err := obtenerPID(msg)
	if err != nil {
		return respuestaError(err), nil
	}

	if err := sistema.ActivarProceso(pid); err != nil {
		utils.ErrorLog.Error("Error activando proceso", "pid", pid, "error", err)
		return respuestaError(err), nil
	}

	return map[string]interface{}{"status": "OK"}, nil
}

// handlerLeerMemoria devuelve los bytes leídos en "datos" (base64 en el JSON)
func handlerLeerMemoria(msg *utils.Mensaje) (interface{}, error) {
	pid, err := obtenerPID(msg)
	if err != nil {
		return respuestaError(err), nil
	}
	direccion, err := obtenerDireccion(msg, "direccion")
	if err != nil {
		return respuestaError(err), nil
	}
	tamanio, err := utils.ObtenerEntero(msg, "tamanio")
	if err != nil || tamanio <= 0 {
		return respuestaError(errors.Errorf("tamanio inválido: %d", tamanio)), nil
	}

	// el cambio de contexto, si hace falta, lo hace la VM junto con la lectura
	datos, err := sistema.LeerProceso(pid, direcciones.Virtual(direccion), tamanio)
	if err != nil {
		utils.ErrorLog.Error("Error leyendo memoria", "pid", pid, "direccion", direcciones.Virtual(direccion), "error", err)
		return respuestaError(err), nil
	}

	// Log obligatorio
	utils.InfoLog.Info(fmt.Sprintf("## PID: %d - Lectura - Dir. Virtual: %v - Tamaño: %d", pid, direcciones.Virtual(direccion), tamanio))

	return map[string]interface{}{
		"status": "OK",
		"datos":  datos,
	}, nil
}

// handlerEscribirMemoria acepta "valor" como texto o "datos" en base64
func handlerEscribirMemoria(msg *utils.Mensaje) (interface{}, error) {
	pid, err := obtenerPID(msg)
	if err != nil {
		return respuestaError(err), nil
	}
	direccion, err := obtenerDireccion(msg, "direccion")
	if err != nil {
		return respuestaError(err), nil
	}

	var datos []byte
	if valor, err := utils.ObtenerTexto(msg, "valor"); err == nil {
		datos = []byte(valor)
	} else if codificados, err := utils.ObtenerTexto(msg, "datos"); err == nil {
		datos, err = base64.StdEncoding.DecodeString(codificados)
		if err != nil {
			return respuestaError(errors.Wrap(err, "datos mal codificados")), nil
		}
	}
	if len(datos) == 0 {
		return respuestaError(errors.New("no hay nada para escribir")), nil
	}

	if err := sistema.EscribirProceso(pid, direcciones.Virtual(direccion), datos); err != nil {
		utils.ErrorLog.Error("Error escribiendo memoria", "pid", pid, "direccion", direcciones.Virtual(direccion), "error", err)
		return respuestaError(err), nil
	}

	utils.InfoLog.Info(fmt.Sprintf("## PID: %d - Escritura - Dir. Virtual: %v - Tamaño: %d", pid, direcciones.Virtual(direccion), len(datos)))

	return map[string]interface{}{"status": "OK"}, nil
}

var tiposFallo = map[string]vm.TipoFallo{
	"lectura":      vm.FalloLectura,
	"escritura":    vm.FalloEscritura,
	"solo_lectura": vm.FalloSoloLectura,
}

// handlerFalloPagina levanta un fallo explícito, como el trap de la TLB
func handlerFalloPagina(msg *utils.Mensaje) (interface{}, error) {
	pid, err := obtenerPID(msg)
	if err != nil {
		return respuestaError(err), nil
	}
	direccion, err := obtenerDireccion(msg, "direccion")
	if err != nil {
		return respuestaError(err), nil
	}
	nombre, _ := utils.ObtenerTexto(msg, "tipo")
	tipo, ok := tiposFallo[nombre]
	if !ok {
		return respuestaError(errors.Wrapf(vm.ErrTipoFalloInvalido, "%q", nombre)), nil
	}

	if err := sistema.ResolverFalloProceso(pid, tipo, direcciones.Virtual(direccion)); err != nil {
		return respuestaError(err), nil
	}

	return map[string]interface{}{"status": "OK"}, nil
}

func handlerEstado(msg *utils.Mensaje) (interface{}, error) {
	return map[string]interface{}{
		"status": "OK",
		"estado": sistema.Estado(),
	}, nil
}

// handlerEstadisticas devuelve los contadores y las identidades que no cierran
func handlerEstadisticas(msg *utils.Mensaje) (interface{}, error) {
	inconsistencias := []string{}
	for _, err := range sistema.Contadores().Verificar() {
		inconsistencias = append(inconsistencias, err.Error())
	}
	if len(inconsistencias) > 0 {
		utils.ErrorLog.Warn("Los contadores no son consistentes", "inconsistencias", inconsistencias)
	}

	return map[string]interface{}{
		"status":          "OK",
		"estadisticas":    sistema.Estadisticas(),
		"inconsistencias": inconsistencias,
	}, nil
}

func handlerAsignarKernel(msg *utils.Mensaje) (interface{}, error) {
	paginas, err := utils.ObtenerEntero(msg, "paginas")
	if err != nil || paginas <= 0 {
		return respuestaError(errors.Errorf("cantidad de páginas inválida: %d", paginas)), nil
	}

	direccion, err := sistema.AsignarPaginasKernel(paginas)
	if err != nil {
		utils.ErrorLog.Error("Error asignando páginas de kernel", "paginas", paginas, "error", err)
		return respuestaError(err), nil
	}

	utils.InfoLog.Debug("Páginas de kernel asignadas", "paginas", paginas, "direccion", fmt.Sprintf("%#x", direccion))
	return map[string]interface{}{
		"status":    "OK",
		"direccion": direccion,
	}, nil
}

func handlerLiberarKernel(msg *utils.Mensaje) (interface{}, error) {
	direccion, err := obtenerDireccion(msg, "direccion")
	if err != nil {
		return respuestaError(err), nil
	}

	if err := sistema.LiberarPaginasKernel(direccion); err != nil {
		utils.ErrorLog.Error("Error liberando páginas de kernel", "direccion", fmt.Sprintf("%#x", direccion), "error", err)
		return respuestaError(err), nil
	}

	return map[string]interface{}{"status": "OK"}, nil
}
