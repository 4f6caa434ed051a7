// services/link/server.go
package link

import (
	"context"
	"errors"

	"avrprog-go/bus"
	"avrprog-go/errcode"
	"avrprog-go/services/hal"
	"avrprog-go/services/programmer"
	"avrprog-go/types"
	"avrprog-go/x/mathx"
	"avrprog-go/x/timex"
)

// TopicStatus carries the retained types.ProgrammerStatus.
var TopicStatus = bus.T("programmer", "status")

// Server answers frames from one link by driving a Programmer. It is the
// only caller of the Programmer, so commands execute strictly in arrival
// order.
type Server struct {
	link hal.Link
	prog *programmer.Programmer
	conn *bus.Connection

	dec  Decoder
	rx   [64]byte
	data [programmer.ChunkSize]byte
	tx   []byte

	last errcode.Code
}

// NewServer returns a server. conn may be nil to skip status publication.
func NewServer(l hal.Link, p *programmer.Programmer, conn *bus.Connection) *Server {
	return &Server{
		link: l,
		prog: p,
		conn: conn,
		tx:   make([]byte, 0, maxFrame),
		last: errcode.OK,
	}
}

// Run serves frames until ctx ends or the link fails.
func (s *Server) Run(ctx context.Context) error {
	s.publish()
	for {
		n, err := s.link.RecvSomeContext(ctx, s.rx[:])
		for _, b := range s.rx[:n] {
			f, ok, ferr := s.dec.Feed(b)
			switch {
			case ferr != nil:
				s.fail(ferr)
			case ok:
				s.Handle(f)
			}
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
	}
}

// Handle executes one decoded frame and writes the response. Status is
// published before the response goes out.
func (s *Server) Handle(f Frame) {
	switch f.Type {
	case TypeSetup:
		if len(f.Payload) != 8 {
			s.fail(ErrBadFrame)
			return
		}
		var h programmer.Header
		copy(h[:], f.Payload)
		r, err := s.prog.Setup(h)
		if err != nil {
			s.fail(err)
			return
		}
		s.note(errcode.MapDriverErr(s.prog.Session().Err))
		s.send(TypeReply, r.Reply)

	case TypeIn:
		if len(f.Payload) != 1 {
			s.fail(ErrBadFrame)
			return
		}
		n, err := s.prog.Read(s.data[:mathx.Min(int(f.Payload[0]), len(s.data))])
		if err != nil {
			s.fail(err)
			return
		}
		if s.prog.Session().State == programmer.Idle {
			s.publish()
		}
		s.send(TypeData, s.data[:n])

	case TypeOut:
		_, done, err := s.prog.Write(f.Payload)
		if err != nil {
			s.fail(err)
			return
		}
		var flag byte
		if done {
			flag = 1
			if serr := s.prog.Session().Err; serr != nil {
				s.last = errcode.MapDriverErr(serr)
			}
			s.publish()
		}
		s.send(TypeAck, []byte{flag})

	default:
		s.fail(programmer.ErrUnknownCommand)
	}
}

func (s *Server) send(t FrameType, payload []byte) {
	var err error
	s.tx, err = AppendFrame(s.tx[:0], t, payload)
	if err != nil {
		println("[link] encode failed:", err.Error())
		return
	}
	if _, err := s.link.Write(s.tx); err != nil {
		println("[link] write failed:", err.Error())
	}
}

// fail answers with an error frame carrying the status for err.
func (s *Server) fail(err error) {
	st := StatusOf(err)
	s.note(CodeOf(st))
	if st != StatusOutOfState {
		println("[link]", err.Error())
	}
	s.send(TypeErr, []byte{st})
}

func (s *Server) note(c errcode.Code) {
	s.last = c
	s.publish()
}

// publish retains the current session status on the bus.
func (s *Server) publish() {
	if s.conn == nil {
		return
	}
	ss := s.prog.Session()
	st := types.ProgrammerStatus{
		Device:    ss.Device.String(),
		State:     ss.State.String(),
		Address:   ss.Address,
		Remaining: ss.Remaining,
		TS:        timex.NowMs(),
	}
	if s.last != errcode.OK {
		st.LastCode = string(s.last)
	}
	s.conn.Publish(s.conn.NewMessage(TopicStatus, st, true))
}

// StatusOf maps an error to the status byte of an error frame.
func StatusOf(err error) byte {
	switch {
	case errors.Is(err, programmer.ErrOutOfState):
		return StatusOutOfState
	case errors.Is(err, ErrCRC):
		return StatusCRCMismatch
	case errors.Is(err, programmer.ErrUnknownCommand):
		return StatusUnknownCommand
	default:
		return StatusBadFrame
	}
}

// CodeOf maps an error frame status to its stable code.
func CodeOf(status byte) errcode.Code {
	switch status {
	case StatusOutOfState:
		return errcode.OutOfState
	case StatusBadFrame:
		return errcode.BadFrame
	case StatusCRCMismatch:
		return errcode.CRCMismatch
	case StatusUnknownCommand:
		return errcode.UnknownCommand
	default:
		return errcode.Error
	}
}
