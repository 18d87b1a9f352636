package utils

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/pkg/errors"
)

// tope del cuerpo de un mensaje; alcanza para escrituras de varias páginas en base64
const limiteMensaje = 16 << 20

// HTTPHandlerFunc atiende un mensaje y devuelve lo que se codifica como respuesta
type HTTPHandlerFunc func(*Mensaje) (interface{}, error)

// HTTPServer recibe los mensajes del módulo en /mensaje
type HTTPServer struct {
	IP     string
	Puerto int
	Nombre string

	server    *http.Server
	handlers  map[int]HTTPHandlerFunc
	atendidos atomic.Uint64
}

func NewHTTPServer(ip string, puerto int, nombre string) *HTTPServer {
	return &HTTPServer{
		IP:       ip,
		Puerto:   puerto,
		Nombre:   nombre,
		handlers: make(map[int]HTTPHandlerFunc),
	}
}

// RegisterHTTPHandler asocia el handler a un tipo de mensaje; no es seguro
// llamarlo con el servidor escuchando
func (s *HTTPServer) RegisterHTTPHandler(tipoMensaje int, handler HTTPHandlerFunc) {
	s.handlers[tipoMensaje] = handler
}

// Atendidos cuenta los mensajes que llegaron a un handler
func (s *HTTPServer) Atendidos() uint64 {
	return s.atendidos.Load()
}

// Handler arma el mux con /mensaje y /health
func (s *HTTPServer) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/mensaje", s.atenderMensaje)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		responderJSON(w, map[string]interface{}{
			"status":    "ok",
			"module":    s.Nombre,
			"atendidos": s.Atendidos(),
		})
	})
	return mux
}

func (s *HTTPServer) atenderMensaje(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Método no permitido", http.StatusMethodNotAllowed)
		return
	}

	var mensaje Mensaje
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, limiteMensaje)).Decode(&mensaje); err != nil {
		ErrorLog.Warn("Mensaje mal formado", "módulo", s.Nombre, "remoto", r.RemoteAddr, "error", err)
		http.Error(w, fmt.Sprintf("Error decodificando mensaje: %v", err), http.StatusBadRequest)
		return
	}

	handler, ok := s.handlers[mensaje.Tipo]
	if !ok {
		http.Error(w, fmt.Sprintf("No hay manejador para el tipo de mensaje %d", mensaje.Tipo), http.StatusBadRequest)
		return
	}

	s.atendidos.Add(1)
	InfoLog.Debug("Mensaje recibido",
		"módulo", s.Nombre,
		"tipo", mensaje.Tipo,
		"operacion", mensaje.Operacion,
		"origen", mensaje.Origen)

	respuesta, err := handler(&mensaje)
	if err != nil {
		ErrorLog.Error("Error en el manejador", "módulo", s.Nombre, "tipo", mensaje.Tipo, "error", err)
		http.Error(w, fmt.Sprintf("Error en el manejador: %v", err), http.StatusInternalServerError)
		return
	}
	responderJSON(w, respuesta)
}

func responderJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		ErrorLog.Error("Error codificando respuesta", "error", err)
	}
}

// Start escucha hasta que se llame a Shutdown, que no se informa como error
func (s *HTTPServer) Start() error {
	s.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.IP, s.Puerto),
		Handler: s.Handler(),
	}

	InfoLog.Info("Servidor HTTP escuchando", "módulo", s.Nombre, "dirección", s.server.Addr)
	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown deja de aceptar mensajes y espera a los que estén en curso
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
