package avrhv

// ReadFuse returns one configuration byte. Out-of-range kinds wrap modulo
// the number of kinds.
func (e *Engine) ReadFuse(s *Session, k FuseKind) byte {
	return s.Transport().ReadFuse(k.Normalize())
}

// WriteFuse programs one configuration byte. On the serial link a busy
// timeout resets the target and is reported as ErrBusyTimeout.
func (e *Engine) WriteFuse(s *Session, k FuseKind, v byte) error {
	return s.Transport().WriteFuse(k.Normalize(), v).err()
}

// ReadSignature returns signature byte index (0..2).
func (e *Engine) ReadSignature(s *Session, index byte) byte {
	return s.Transport().ReadSignature(index)
}

// ChipErase erases flash, EEPROM and lock bits.
func (e *Engine) ChipErase(s *Session) error {
	return s.Transport().ChipErase().err()
}
