package avrhv

// ReadFlash returns the flash byte at addr. The extended address is only
// reloaded when addr's 128 KiB segment differs from the cached one.
func (e *Engine) ReadFlash(s *Session, addr uint32) byte {
	t := s.Transport()
	return t.ReadFlash(addr, s.segmentChanged(addr))
}

// BeginFlashWrite starts a page-buffered write stream of pageSize words.
// The first WriteFlash reissues the write-flash command.
func (e *Engine) BeginFlashWrite(s *Session, pageSize uint16) {
	s.PageSize = pageSize
	s.fill = pageSize
}

// WriteFlash buffers one flash byte. Even addresses hold the byte as the
// pending low half; odd addresses load the completed word into the page
// buffer with whatever low byte is pending. Nothing is committed until
// FlushPage.
//
// The trailing poll mode byte is accepted for host compatibility and ignored.
func (e *Engine) WriteFlash(s *Session, addr uint32, b byte, _ byte) {
	t := s.Transport()
	if s.fill >= s.PageSize {
		t.BeginPage()
		s.fill = 0
	}
	if addr&1 == 0 {
		s.pendingLow = b
		s.fill++
		return
	}
	t.LoadWord(addr, s.pendingLow, b)
	s.fill++
}

// FlushPage commits the page buffer holding addr and re-arms the stream so
// the next word starts a new page.
func (e *Engine) FlushPage(s *Session, addr uint32) error {
	t := s.Transport()
	o := t.WritePage(addr, s.segmentChanged(addr))
	s.fill = s.PageSize
	return o.err()
}

// ReadEEPROM returns the EEPROM byte at addr, or 0xFF when the bound
// device has no EEPROM.
func (e *Engine) ReadEEPROM(s *Session, addr uint16) byte {
	t := s.Transport()
	if !t.HasEEPROM() {
		return 0xFF
	}
	return t.ReadEEPROM(addr)
}

// WriteEEPROM writes one EEPROM byte. Devices without EEPROM accept the
// write and do nothing.
func (e *Engine) WriteEEPROM(s *Session, addr uint16, b byte) error {
	t := s.Transport()
	if !t.HasEEPROM() {
		return nil
	}
	return t.WriteEEPROM(addr, b).err()
}
