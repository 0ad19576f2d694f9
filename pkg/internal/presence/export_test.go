package presence

// AttachStalled 登记一个从不读取发送队列的客户端.
func (h *Hub) AttachStalled(fileID int64) error {
	return h.register(&client{hub: h, fileID: fileID, send: make(chan []byte)})
}

// Topics 返回当前订阅中的文件主题数.
func (h *Hub) Topics() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return len(h.topics)
}
