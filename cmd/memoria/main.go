package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/ram"
	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/utils"
	"github.com/sisoputnfrba/tp-2025-2c-LosCuervosXeneizes/vm"
)

var (
	modulo  *utils.Modulo
	sistema *vm.Sistema
)

func main() {
	// Verificar argumentos
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "Uso: %s <archivo_configuracion>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Ejemplo: %s configs/memoria-config.json\n", os.Args[0])
		os.Exit(1)
	}

	// Inicializar logger ANTES de usarlo
	utils.InicializarLogger("INFO", "Memoria")

	utils.InfoLog.Info("Iniciando módulo Memoria")

	inicializarModulo()

	utils.InfoLog.Info("Memoria inicializada correctamente")

	// Al recibir SIGINT/SIGTERM se imprimen los contadores y se cierra el swapfile
	senales := make(chan os.Signal, 1)
	signal.Notify(senales, syscall.SIGINT, syscall.SIGTERM)
	<-senales

	ctx, cancelar := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelar()
	if err := modulo.Server.Shutdown(ctx); err != nil {
		utils.ErrorLog.Warn("El servidor no terminó a tiempo", "error", err)
	}
	utils.InfoLog.Info("Servidor detenido", "mensajes_atendidos", modulo.Server.Atendidos())

	if err := sistema.Apagar(); err != nil {
		utils.ErrorLog.Error("Error apagando la VM", "error", err)
		os.Exit(1)
	}
}

func inicializarModulo() {
	rutaConfig := os.Args[1]

	// Verificar que el archivo existe
	if _, err := os.Stat(rutaConfig); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error: El archivo de configuración no existe: %s\n", rutaConfig)
		os.Exit(1)
	}

	modulo = utils.NuevoModulo("Memoria", rutaConfig)

	config = utils.CargarConfiguracion[MemoryConfig](rutaConfig)

	// Actualizar logger con configuración del archivo
	utils.InicializarLogger(config.LogLevel, "Memoria")
	utils.InfoLog.Info("Configuración cargada", "nivel_log", config.LogLevel, "config_path", rutaConfig)

	if err := os.MkdirAll(config.DumpPath, 0755); err != nil {
		utils.InfoLog.Warn("No se pudo crear directorio para dumps", "error", err)
	} else {
		utils.InfoLog.Info("Directorio para dumps verificado", "ruta", config.DumpPath)
	}

	var err error
	sistema, err = inicializarMemoria(config)
	if err != nil {
		utils.ErrorLog.Error("Error inicializando la memoria", "error", err)
		os.Exit(1)
	}

	registrarHandlers()

	modulo.IniciarServidor(config.IPMemory, config.PortMemory)
	utils.InfoLog.Info("Servidor iniciado", "ip", config.IPMemory, "puerto", config.PortMemory)
}

// inicializarMemoria arma la RAM simulada y la VM encima, y corre el bootstrap
func inicializarMemoria(cfg *MemoryConfig) (*vm.Sistema, error) {
	memoria, err := ram.Nueva(cfg.MemorySize, cfg.KernelSize)
	if err != nil {
		return nil, errors.Wrap(err, "creando la memoria física")
	}

	s := vm.Nuevo(cfg.configVM(), vm.Dependencias{RAM: memoria})
	if err := s.Bootstrap(); err != nil {
		return nil, errors.Wrap(err, "bootstrap de la VM")
	}

	estado := s.Estado()
	if !estado.Habilitada {
		utils.ErrorLog.Warn("VM deshabilitada: sin memoria para las tablas, el kernel sigue con el bump allocator")
	}
	utils.InfoLog.Info("Memoria inicializada",
		"marcos", estado.Marcos,
		"marcos_libres", estado.MarcosLibre,
		"frontera", estado.Frontera,
		"slots_swap", estado.SlotsSwap,
		"entradas_tlb", estado.EntradasTLB)
	return s, nil
}

func registrarHandlers() {
	modulo.RegistrarHandler(utils.MensajeHandshake, "handshake", handlerHandshake)
	modulo.RegistrarHandler(utils.MensajeInicializarProceso, "default", handlerInicializarProceso)
	modulo.RegistrarHandler(utils.MensajeFinalizarProceso, "default", handlerFinalizarProceso)
	modulo.RegistrarHandler(utils.MensajeActivarProceso, "default", handlerActivarProceso)
	modulo.RegistrarHandler(utils.MensajeLeer, "default", handlerLeerMemoria)
	modulo.RegistrarHandler(utils.MensajeEscribir, "default", handlerEscribirMemoria)
	modulo.RegistrarHandler(utils.MensajeFalloPagina, "default", handlerFalloPagina)
	modulo.RegistrarHandler(utils.MensajeEstado, "default", handlerEstado)
	modulo.RegistrarHandler(utils.MensajeEstadisticas, "default", handlerEstadisticas)
	modulo.RegistrarHandler(utils.MensajeMemoryDump, "default", handlerMemoryDump)
	modulo.RegistrarHandler(utils.MensajeAsignarKernel, "default", handlerAsignarKernel)
	modulo.RegistrarHandler(utils.MensajeLiberarKernel, "default", handlerLiberarKernel)

	utils.InfoLog.Info("Handlers registrados correctamente")
}
