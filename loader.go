package kvbench

// StartLoading begins the warm-up phase: every session is marked LOADING
// and the loader starts pushing sequential-index SETs (up to loaderChunk
// outstanding at a time) so the key space is populated before steady-state
// traffic begins. Matches Connection::start_loading in Connection.cc.
//
// Unlike the reference implementation, which always loads through the
// single leader session, Shard mode spreads the loader SETs across
// sessions by the same shardIndex routing steady-state traffic uses, so
// every shard's server ends up holding its share of the key space.
func (c *Connection) StartLoading() error {
	for _, s := range c.sessions {
		s.loaderIssued = 0
		s.loaderCompleted = 0
		s.loaderNextIndex = 0
		s.loaderTotal = c.sessionLoadTarget(s)
		if s.loaderTotal == 0 {
			s.ReadState = ReadIdle
			continue
		}
		s.ReadState = ReadLoading
	}
	for _, s := range c.sessions {
		if s.ReadState == ReadLoading {
			if err := c.topUpLoader(s); err != nil {
				return err
			}
		}
	}
	return nil
}

// nextLoaderRecord returns the next raw record index assigned to s (by
// shardIndex in Shard mode, or simply the next sequential index otherwise),
// advancing s.loaderNextIndex past it. ok is false once Records is
// exhausted.
func (c *Connection) nextLoaderRecord(s *ServerSession) (idx int, ok bool) {
	if !c.opt.Shard {
		if s.loaderNextIndex >= c.opt.Records {
			return 0, false
		}
		idx = s.loaderNextIndex
		s.loaderNextIndex++
		return idx, true
	}
	for s.loaderNextIndex < c.opt.Records {
		candidate := s.loaderNextIndex
		s.loaderNextIndex++
		if c.sessions[shardIndex(c.keyGen.Key(candidate), len(c.sessions))].ID == s.ID {
			return candidate, true
		}
	}
	return 0, false
}

// topUpLoader issues sequential SETs on s until either loaderChunk
// operations are outstanding or its share of Records is exhausted. Matches
// the issuing half of start_loading/read_callback's LOADING branch
// (Connection.cc: "while (loader_issued < loader_completed + LOADER_CHUNK)").
func (c *Connection) topUpLoader(s *ServerSession) error {
	for s.loaderIssued < s.loaderCompleted+loaderChunk {
		idx, ok := c.nextLoaderRecord(s)
		if !ok {
			return nil
		}
		key := c.keyGen.Key(idx)
		value := c.drawValue()
		// Unlike issueSomething's steady-state traffic, loader SETs are not
		// accumulated into tx_bytes: Connection.cc guards the accumulation
		// with `if (serv->read_state != LOADING)`.
		if _, err := s.engine.WriteSet(s.stream, key, value); err != nil {
			return err
		}
		s.pushOp(&Operation{Type: OpSet, Start: coarseNow()})
		s.loaderIssued++
	}
	return nil
}

// drainLoaderReads consumes completed loader SET responses for s, advancing
// loaderCompleted and topping up further issuance, then flips s to IDLE
// once its full share of Records has been stored. Matches the LOADING
// branch of Connection::read_callback.
func (c *Connection) drainLoaderReads(s *ServerSession) error {
	for {
		if s.frontOp() == nil {
			return nil
		}
		_, ok, err := s.engine.TryReadResponse(s.stream, OpSet)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		s.popOp()
		s.loaderCompleted++

		if s.loaderCompleted >= s.loaderTotal {
			s.ReadState = ReadIdle
			return nil
		}
		if err := c.topUpLoader(s); err != nil {
			return err
		}
	}
}

// sessionLoadTarget returns how many records session s is responsible for
// loading: every record for a single-target loader, or its shard's share
// when Shard mode spreads the key space across sessions.
func (c *Connection) sessionLoadTarget(s *ServerSession) int {
	if !c.opt.Shard {
		if s.ID == c.loaderSessionID() {
			return c.opt.Records
		}
		return 0
	}
	count := 0
	for i := 0; i < c.opt.Records; i++ {
		if c.sessions[shardIndex(c.keyGen.Key(i), len(c.sessions))].ID == s.ID {
			count++
		}
	}
	return count
}

// loaderSessionID is the single session the non-Shard loader targets: the
// current leader for etcd, otherwise the first session.
func (c *Connection) loaderSessionID() int {
	if c.opt.Protocol == ProtocolEtcd {
		return c.leader
	}
	return c.sessions[0].ID
}

// LoaderDone reports whether every session has finished the warm-up phase.
func (c *Connection) LoaderDone() bool {
	for _, s := range c.sessions {
		if s.ReadState == ReadLoading {
			return false
		}
	}
	return true
}
