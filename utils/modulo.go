package utils

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"

	"github.com/pkg/errors"
)

// Modulo representa un módulo genérico del sistema
type Modulo struct {
	Nombre      string
	Server      *HTTPServer
	Clientes    map[string]*HTTPClient
	ConfigPath  string
	HandlerFunc map[string]map[string]HTTPHandlerFunc
}

// NuevoModulo crea una nueva instancia de un módulo
func NuevoModulo(nombre string, configPath string) *Modulo {
	return &Modulo{
		Nombre:      nombre,
		Clientes:    make(map[string]*HTTPClient),
		ConfigPath:  configPath,
		HandlerFunc: make(map[string]map[string]HTTPHandlerFunc),
	}
}

// RegistrarHandler registra un handler para un tipo de mensaje y operación específicos
func (m *Modulo) RegistrarHandler(tipo int, operacion string, handler HTTPHandlerFunc) {
	clave := strconv.Itoa(tipo)
	if _, existe := m.HandlerFunc[clave]; !existe {
		m.HandlerFunc[clave] = make(map[string]HTTPHandlerFunc)
	}
	m.HandlerFunc[clave][operacion] = handler
}

// PrepararServidor crea el servidor HTTP del módulo con todos los handlers
// registrados, sin empezar a escuchar
func (m *Modulo) PrepararServidor(ip string, puerto int) *HTTPServer {
	m.Server = NewHTTPServer(ip, puerto, m.Nombre)

	for tipoStr, handlersPorOperacion := range m.HandlerFunc {
		tipo, err := strconv.Atoi(tipoStr)
		if err != nil {
			slog.Error("Error al convertir tipo de mensaje a entero", "tipo", tipoStr, "error", err)
			continue
		}

		handlers := handlersPorOperacion
		m.Server.RegisterHTTPHandler(tipo, func(msg *Mensaje) (interface{}, error) {
			operacion := msg.Operacion
			if operacion == "" {
				operacion = "default"
			}

			handler, existe := handlers[operacion]
			if !existe {
				handler, existe = handlers["default"]
				if !existe {
					slog.Error("No hay handler para operación", "tipo", tipo, "operacion", operacion)
					return nil, errors.Errorf("no hay handler para operación %s", operacion)
				}
			}

			return handler(msg)
		})
	}

	return m.Server
}

// IniciarServidor crea e inicializa el servidor HTTP del módulo
func (m *Modulo) IniciarServidor(ip string, puerto int) {
	servidor := m.PrepararServidor(ip, puerto)

	go func() {
		err := servidor.Start()
		if err != nil {
			slog.Error("Error al iniciar servidor HTTP", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Servidor HTTP iniciado", "módulo", m.Nombre, "dirección", fmt.Sprintf("%s:%d", ip, puerto))
}

// LeerConfiguracion decodifica el JSON de ruta en un T
func LeerConfiguracion[T any](ruta string) (*T, error) {
	absPath, err := filepath.Abs(ruta)
	if err != nil {
		return nil, errors.Wrapf(err, "obteniendo ruta absoluta de %s", ruta)
	}

	file, err := os.Open(absPath)
	if err != nil {
		return nil, errors.Wrapf(err, "abriendo archivo de configuración %s", absPath)
	}
	defer file.Close()

	var config T
	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&config); err != nil {
		return nil, errors.Wrapf(err, "decodificando configuración %s", absPath)
	}

	return &config, nil
}

// CargarConfiguracion es LeerConfiguracion para el arranque de un módulo:
// sin configuración no hay nada que hacer, así que termina el proceso
func CargarConfiguracion[T any](ruta string) *T {
	slog.Info("Cargando configuración", "ruta", ruta)

	config, err := LeerConfiguracion[T](ruta)
	if err != nil {
		slog.Error("Error cargando configuración", "error", err, "ruta", ruta)
		os.Exit(1)
	}

	slog.Info("Configuración cargada correctamente")
	return config
}

// ============================================================================
// Constantes para tipos de mensajes entre módulos
// ============================================================================
const (
	// === COMUNICACIÓN BÁSICA (1-9) ===
	MensajeHandshake = 1 // Conexión inicial

	// === ACCESOS A MEMORIA (10-19) ===
	MensajeLeer         = 10 // Leer bytes de una dirección virtual
	MensajeEscribir     = 11 // Escribir bytes en una dirección virtual
	MensajeFalloPagina  = 12 // Fallo de página explícito (trap de TLB)
	MensajeEstado       = 13 // Ocupación de marcos y SWAP
	MensajeEstadisticas = 14 // Contadores de la VM
	MensajeMemoryDump   = 15 // Volcado de las páginas residentes de un proceso

	// === GESTIÓN DE PROCESOS (20-29) ===
	MensajeInicializarProceso = 20 // Crear espacio de direcciones y regiones
	MensajeFinalizarProceso   = 21 // Destruir espacio de direcciones
	MensajeActivarProceso     = 22 // Cambio de contexto (as_activate)

	// === MEMORIA DE KERNEL (40-49) ===
	MensajeAsignarKernel = 40 // alloc_kpages
	MensajeLiberarKernel = 41 // free_kpages
)
