package protocol

import "github.com/FairForge/brokerd/internal/ids"

// LoginUserRequest is the payload of a LoginUser command.
type LoginUserRequest struct {
	Username string
	Password string
}

func EncodeLoginUserRequest(req *LoginUserRequest) []byte {
	var buf []byte
	buf = append(buf, byte(len(req.Username)))
	buf = append(buf, req.Username...)
	buf = append(buf, byte(len(req.Password)))
	buf = append(buf, req.Password...)
	return buf
}

func DecodeLoginUserRequest(data []byte) (*LoginUserRequest, error) {
	r := &reader{data: data}
	ulen, err := r.u8()
	if err != nil {
		return nil, err
	}
	uname, err := r.bytes(int(ulen))
	if err != nil {
		return nil, err
	}
	plen, err := r.u8()
	if err != nil {
		return nil, err
	}
	pass, err := r.bytes(int(plen))
	if err != nil {
		return nil, err
	}
	return &LoginUserRequest{Username: string(uname), Password: string(pass)}, nil
}

// LoginResponse carries the authenticated user id back to the client.
type LoginResponse struct {
	UserID uint32
}

func EncodeLoginResponse(resp *LoginResponse) []byte {
	return appendU32(nil, resp.UserID)
}

func DecodeLoginResponse(data []byte) (*LoginResponse, error) {
	r := &reader{data: data}
	id, err := r.u32()
	if err != nil {
		return nil, err
	}
	return &LoginResponse{UserID: id}, nil
}

// CreateStreamRequest is the payload of a CreateStream command.
type CreateStreamRequest struct {
	StreamID ids.Identifier
	Name     string
}

func EncodeCreateStreamRequest(req *CreateStreamRequest) []byte {
	var buf []byte
	buf = append(buf, req.StreamID.Encode()...)
	buf = append(buf, byte(len(req.Name)))
	buf = append(buf, req.Name...)
	return buf
}

func DecodeCreateStreamRequest(data []byte) (*CreateStreamRequest, error) {
	r := &reader{data: data}
	id, err := r.identifier()
	if err != nil {
		return nil, err
	}
	nlen, err := r.u8()
	if err != nil {
		return nil, err
	}
	name, err := r.bytes(int(nlen))
	if err != nil {
		return nil, err
	}
	return &CreateStreamRequest{StreamID: id, Name: string(name)}, nil
}

// CreateTopicRequest is the payload of a CreateTopic command.
type CreateTopicRequest struct {
	StreamID           ids.Identifier
	TopicID            ids.Identifier
	Name               string
	PartitionsCount    uint32
	MessageExpiry      uint64 // microseconds, 0 = unlimited
	MaxTopicSizeBytes  uint64 // 0 = unlimited
	ReplicationFactor  uint8
}

func EncodeCreateTopicRequest(req *CreateTopicRequest) []byte {
	var buf []byte
	buf = append(buf, req.StreamID.Encode()...)
	buf = append(buf, req.TopicID.Encode()...)
	buf = append(buf, byte(len(req.Name)))
	buf = append(buf, req.Name...)
	buf = appendU32(buf, req.PartitionsCount)
	buf = appendU64(buf, req.MessageExpiry)
	buf = appendU64(buf, req.MaxTopicSizeBytes)
	buf = append(buf, req.ReplicationFactor)
	return buf
}

func DecodeCreateTopicRequest(data []byte) (*CreateTopicRequest, error) {
	r := &reader{data: data}
	streamID, err := r.identifier()
	if err != nil {
		return nil, err
	}
	topicID, err := r.identifier()
	if err != nil {
		return nil, err
	}
	nlen, err := r.u8()
	if err != nil {
		return nil, err
	}
	name, err := r.bytes(int(nlen))
	if err != nil {
		return nil, err
	}
	partitions, err := r.u32()
	if err != nil {
		return nil, err
	}
	expiry, err := r.u64()
	if err != nil {
		return nil, err
	}
	maxSize, err := r.u64()
	if err != nil {
		return nil, err
	}
	rf, err := r.u8()
	if err != nil {
		return nil, err
	}
	return &CreateTopicRequest{
		StreamID: streamID, TopicID: topicID, Name: string(name),
		PartitionsCount: partitions, MessageExpiry: expiry,
		MaxTopicSizeBytes: maxSize, ReplicationFactor: rf,
	}, nil
}

// StoreConsumerOffsetRequest is the payload of a StoreConsumerOffset command.
type StoreConsumerOffsetRequest struct {
	StreamID    ids.Identifier
	TopicID     ids.Identifier
	PartitionID uint32
	ConsumerID  uint32
	Offset      uint64
}

func EncodeStoreConsumerOffsetRequest(req *StoreConsumerOffsetRequest) []byte {
	var buf []byte
	buf = append(buf, req.StreamID.Encode()...)
	buf = append(buf, req.TopicID.Encode()...)
	buf = appendU32(buf, req.PartitionID)
	buf = appendU32(buf, req.ConsumerID)
	buf = appendU64(buf, req.Offset)
	return buf
}

func DecodeStoreConsumerOffsetRequest(data []byte) (*StoreConsumerOffsetRequest, error) {
	r := &reader{data: data}
	streamID, err := r.identifier()
	if err != nil {
		return nil, err
	}
	topicID, err := r.identifier()
	if err != nil {
		return nil, err
	}
	partitionID, err := r.u32()
	if err != nil {
		return nil, err
	}
	consumerID, err := r.u32()
	if err != nil {
		return nil, err
	}
	offset, err := r.u64()
	if err != nil {
		return nil, err
	}
	return &StoreConsumerOffsetRequest{
		StreamID: streamID, TopicID: topicID, PartitionID: partitionID,
		ConsumerID: consumerID, Offset: offset,
	}, nil
}

// JoinConsumerGroupRequest / LeaveConsumerGroupRequest share a shape.
type ConsumerGroupMembershipRequest struct {
	StreamID   ids.Identifier
	TopicID    ids.Identifier
	GroupID    ids.Identifier
	ConsumerID uint32
}

func EncodeConsumerGroupMembershipRequest(req *ConsumerGroupMembershipRequest) []byte {
	var buf []byte
	buf = append(buf, req.StreamID.Encode()...)
	buf = append(buf, req.TopicID.Encode()...)
	buf = append(buf, req.GroupID.Encode()...)
	buf = appendU32(buf, req.ConsumerID)
	return buf
}

func DecodeConsumerGroupMembershipRequest(data []byte) (*ConsumerGroupMembershipRequest, error) {
	r := &reader{data: data}
	streamID, err := r.identifier()
	if err != nil {
		return nil, err
	}
	topicID, err := r.identifier()
	if err != nil {
		return nil, err
	}
	groupID, err := r.identifier()
	if err != nil {
		return nil, err
	}
	consumerID, err := r.u32()
	if err != nil {
		return nil, err
	}
	return &ConsumerGroupMembershipRequest{StreamID: streamID, TopicID: topicID, GroupID: groupID, ConsumerID: consumerID}, nil
}

// CreateConsumerGroupRequest is the payload of a CreateConsumerGroup command.
type CreateConsumerGroupRequest struct {
	StreamID ids.Identifier
	TopicID  ids.Identifier
	GroupID  ids.Identifier
	Name     string
}

func EncodeCreateConsumerGroupRequest(req *CreateConsumerGroupRequest) []byte {
	var buf []byte
	buf = append(buf, req.StreamID.Encode()...)
	buf = append(buf, req.TopicID.Encode()...)
	buf = append(buf, req.GroupID.Encode()...)
	buf = append(buf, byte(len(req.Name)))
	buf = append(buf, req.Name...)
	return buf
}

func DecodeCreateConsumerGroupRequest(data []byte) (*CreateConsumerGroupRequest, error) {
	r := &reader{data: data}
	streamID, err := r.identifier()
	if err != nil {
		return nil, err
	}
	topicID, err := r.identifier()
	if err != nil {
		return nil, err
	}
	groupID, err := r.identifier()
	if err != nil {
		return nil, err
	}
	nlen, err := r.u8()
	if err != nil {
		return nil, err
	}
	name, err := r.bytes(int(nlen))
	if err != nil {
		return nil, err
	}
	return &CreateConsumerGroupRequest{StreamID: streamID, TopicID: topicID, GroupID: groupID, Name: string(name)}, nil
}

// DeleteConsumerGroupRequest is the payload of a DeleteConsumerGroup command.
type DeleteConsumerGroupRequest struct {
	StreamID ids.Identifier
	TopicID  ids.Identifier
	GroupID  ids.Identifier
}

func EncodeDeleteConsumerGroupRequest(req *DeleteConsumerGroupRequest) []byte {
	var buf []byte
	buf = append(buf, req.StreamID.Encode()...)
	buf = append(buf, req.TopicID.Encode()...)
	buf = append(buf, req.GroupID.Encode()...)
	return buf
}

func DecodeDeleteConsumerGroupRequest(data []byte) (*DeleteConsumerGroupRequest, error) {
	r := &reader{data: data}
	streamID, err := r.identifier()
	if err != nil {
		return nil, err
	}
	topicID, err := r.identifier()
	if err != nil {
		return nil, err
	}
	groupID, err := r.identifier()
	if err != nil {
		return nil, err
	}
	return &DeleteConsumerGroupRequest{StreamID: streamID, TopicID: topicID, GroupID: groupID}, nil
}

// CreatePartitionsRequest is the payload shared by CreatePartitions and
// DeletePartitions commands.
type CreatePartitionsRequest struct {
	StreamID       ids.Identifier
	TopicID        ids.Identifier
	PartitionCount uint32
}

func EncodeCreatePartitionsRequest(req *CreatePartitionsRequest) []byte {
	var buf []byte
	buf = append(buf, req.StreamID.Encode()...)
	buf = append(buf, req.TopicID.Encode()...)
	buf = appendU32(buf, req.PartitionCount)
	return buf
}

func DecodeCreatePartitionsRequest(data []byte) (*CreatePartitionsRequest, error) {
	r := &reader{data: data}
	streamID, err := r.identifier()
	if err != nil {
		return nil, err
	}
	topicID, err := r.identifier()
	if err != nil {
		return nil, err
	}
	count, err := r.u32()
	if err != nil {
		return nil, err
	}
	return &CreatePartitionsRequest{StreamID: streamID, TopicID: topicID, PartitionCount: count}, nil
}

// CreateUserRequest is the payload of a CreateUser command.
type CreateUserRequest struct {
	Username string
	Password string
}

func EncodeCreateUserRequest(req *CreateUserRequest) []byte {
	var buf []byte
	buf = append(buf, byte(len(req.Username)))
	buf = append(buf, req.Username...)
	buf = append(buf, byte(len(req.Password)))
	buf = append(buf, req.Password...)
	return buf
}

func DecodeCreateUserRequest(data []byte) (*CreateUserRequest, error) {
	r := &reader{data: data}
	ulen, err := r.u8()
	if err != nil {
		return nil, err
	}
	uname, err := r.bytes(int(ulen))
	if err != nil {
		return nil, err
	}
	plen, err := r.u8()
	if err != nil {
		return nil, err
	}
	pass, err := r.bytes(int(plen))
	if err != nil {
		return nil, err
	}
	return &CreateUserRequest{Username: string(uname), Password: string(pass)}, nil
}
